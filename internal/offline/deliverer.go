package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Deliverer replays one queued action against the backend. A nil return means
// the action is confirmed applied and may leave the queue.
type Deliverer interface {
	Deliver(ctx context.Context, action *PendingAction) error
}

// DelivererFunc adapts a plain function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, action *PendingAction) error

// Deliver calls the wrapped function.
func (f DelivererFunc) Deliver(ctx context.Context, action *PendingAction) error {
	return f(ctx, action)
}

// HTTPDeliverer replays actions against a REST backend: create POSTs to the
// entity collection, update PUTs and delete DELETEs to the entity resource
// identified by the payload's id field.
type HTTPDeliverer struct {
	client  *resty.Client
	baseURL string
}

// NewHTTPDeliverer creates an HTTP-backed deliverer.
// Parameters:
//   - baseURL: backend base URL; entity paths are appended.
// Returns:
//   - *HTTPDeliverer: initialized deliverer.
func NewHTTPDeliverer(baseURL string) *HTTPDeliverer {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Content-Type", "application/json")
	return &HTTPDeliverer{client: client, baseURL: baseURL}
}

// Deliver replays one action.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - action: queued action to apply.
// Returns:
//   - error: non-nil if delivery failed and the action should be retried.
func (d *HTTPDeliverer) Deliver(ctx context.Context, action *PendingAction) error {
	req := d.client.R().SetContext(ctx)

	var resp *resty.Response
	var err error
	switch action.Type {
	case ActionCreate:
		resp, err = req.SetBody(action.Payload).Post(fmt.Sprintf("%s/%s", d.baseURL, action.Entity))
	case ActionUpdate:
		id, ok := action.Payload["id"].(string)
		if !ok {
			return fmt.Errorf("update action %s has no id", action.ID)
		}
		resp, err = req.SetBody(action.Payload).Put(fmt.Sprintf("%s/%s/%s", d.baseURL, action.Entity, id))
	case ActionDelete:
		id, ok := action.Payload["id"].(string)
		if !ok {
			return fmt.Errorf("delete action %s has no id", action.ID)
		}
		resp, err = req.Delete(fmt.Sprintf("%s/%s/%s", d.baseURL, action.Entity, id))
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}

	if err != nil {
		return fmt.Errorf("failed to deliver action: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("backend rejected action: %s", resp.Status())
	}
	return nil
}
