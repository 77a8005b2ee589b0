package service

import (
	"context"
	"time"

	"dropflow/internal/domain"
	"dropflow/internal/logger"
	"github.com/go-resty/resty/v2"
)

// Notifier receives one-time notifications on terminal transitions: a job
// settling to completed, or an offline queue flush finishing. Implementations
// must not block for long; the core never waits on presentation layers.
type Notifier interface {
	// JobCompleted fires once per job settle.
	JobCompleted(ctx context.Context, job *domain.ImportJob)
	// QueueFlushed fires once per offline sync pass that changed the queue.
	QueueFlushed(ctx context.Context, delivered, dropped int)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) JobCompleted(context.Context, *domain.ImportJob) {}
func (NopNotifier) QueueFlushed(context.Context, int, int)          {}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a notifier backed by the logger.
// Parameters:
//   - log: logger instance.
// Returns:
//   - *LogNotifier: initialized notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) JobCompleted(ctx context.Context, job *domain.ImportJob) {
	n.logger.WithFields(logger.Fields{
		logger.FieldJobID:  job.ID,
		logger.FieldSource: job.Source,
	}).Info("Notification: import job completed")
}

func (n *LogNotifier) QueueFlushed(ctx context.Context, delivered, dropped int) {
	n.logger.WithFields(logger.Fields{
		"delivered": delivered,
		"dropped":   dropped,
	}).Info("Notification: offline queue flushed")
}

// WebhookNotifier POSTs notifications to a configured webhook. Delivery is
// best effort; failures are logged and never propagated to the caller.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *logger.Logger
}

// NewWebhookNotifier creates a webhook-backed notifier.
// Parameters:
//   - url: webhook endpoint receiving JSON notification payloads.
//   - log: logger instance.
// Returns:
//   - *WebhookNotifier: initialized notifier.
func NewWebhookNotifier(url string, log *logger.Logger) *WebhookNotifier {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	return &WebhookNotifier{client: client, url: url, logger: log}
}

func (n *WebhookNotifier) JobCompleted(ctx context.Context, job *domain.ImportJob) {
	n.post(ctx, map[string]interface{}{
		"event":  "import_job.completed",
		"job_id": job.ID,
		"source": job.Source,
	})
}

func (n *WebhookNotifier) QueueFlushed(ctx context.Context, delivered, dropped int) {
	n.post(ctx, map[string]interface{}{
		"event":     "offline_queue.flushed",
		"delivered": delivered,
		"dropped":   dropped,
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload map[string]interface{}) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.url)
	if err != nil {
		n.logger.WithError(err).Warn("Webhook notification failed")
		return
	}
	if resp.IsError() {
		n.logger.WithField(logger.FieldStatus, resp.StatusCode()).Warn("Webhook notification rejected")
	}
}
