package offline

import (
	"context"
	"errors"
	"sync"
	"time"

	"dropflow/internal/logger"
	"dropflow/internal/service"
	"github.com/google/uuid"
)

// ErrSyncInProgress is returned when a sync pass is already running.
// Overlapping triggers collapse into the pass in flight.
var ErrSyncInProgress = errors.New("sync already in progress")

// Queue is a client-resident durable queue of mutations issued while
// disconnected. Actions are appended immediately regardless of connectivity
// and replayed in order on reconnect, on a fixed interval, or on demand. Each
// action has a bounded retry budget; past it the action is dropped and the
// loss is logged, never silently swallowed. The in-flight guard makes the
// queue single-threaded within one process; no cross-process coordination
// exists, so two processes sharing an account can deliver the same logical
// action twice.
type Queue struct {
	store      Store
	deliverer  Deliverer
	notifier   service.Notifier
	logger     *logger.Logger
	maxRetries int

	mu      sync.Mutex // guards store access and the online flag
	online  bool
	syncing bool
}

// QueueConfig holds configuration for the offline queue.
type QueueConfig struct {
	MaxRetries int
}

// NewQueue creates an offline action queue.
// Parameters:
//   - store: durable action store.
//   - deliverer: backend replay collaborator.
//   - notifier: terminal-transition observer; nil disables notifications.
//   - log: logger instance.
//   - cfg: queue configuration; nil uses defaults.
// Returns:
//   - *Queue: initialized queue, assumed online until told otherwise.
func NewQueue(store Store, deliverer Deliverer, notifier service.Notifier, log *logger.Logger, cfg *QueueConfig) *Queue {
	maxRetries := 3
	if cfg != nil && cfg.MaxRetries > 0 {
		maxRetries = cfg.MaxRetries
	}
	if notifier == nil {
		notifier = service.NopNotifier{}
	}
	return &Queue{
		store:      store,
		deliverer:  deliverer,
		notifier:   notifier,
		logger:     log,
		maxRetries: maxRetries,
		online:     true,
	}
}

// Add appends a mutation to the durable queue. The append happens immediately
// and independently of connectivity; when offline the caller learns the
// action is queued, not applied.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - typ: mutation type (create, update, delete).
//   - entity: entity name the mutation targets.
//   - payload: mutation payload.
// Returns:
//   - string: locally generated action ID.
//   - error: non-nil if the queue cannot be persisted.
func (q *Queue) Add(ctx context.Context, typ ActionType, entity string, payload map[string]interface{}) (string, error) {
	action := PendingAction{
		ID:        uuid.New().String(),
		Type:      typ,
		Entity:    entity,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.store.Load()
	if err != nil {
		return "", err
	}
	actions = append(actions, action)
	if err := q.store.Save(actions); err != nil {
		return "", err
	}

	q.logger.WithFields(logger.Fields{
		logger.FieldActionID: action.ID,
		"action_type":        typ,
		"entity":             entity,
		"online":             q.online,
	}).Debug("Action queued")

	return action.ID, nil
}

// Pending returns the number of queued actions.
// Parameters: none.
// Returns:
//   - int: queue length; 0 when the store cannot be read.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	actions, err := q.store.Load()
	if err != nil {
		return 0
	}
	return len(actions)
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Delivered int `json:"delivered"`
	Kept      int `json:"kept"`
	Dropped   int `json:"dropped"`
}

// Sync replays the current queue snapshot. At most one pass runs per process;
// overlapping invocations return ErrSyncInProgress and collapse into the pass
// in flight. Per action: delivery success removes it; failure keeps it with
// retry_count+1 while under the budget, otherwise drops it with a logged
// warning. Queue changes are persisted after every action, so a crash loses
// at most one delivery confirmation. A pass that changed the queue fires the
// one-time flush notification.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *SyncResult: delivered/kept/dropped counts for this pass.
//   - error: ErrSyncInProgress when a pass is already running.
func (q *Queue) Sync(ctx context.Context) (*SyncResult, error) {
	q.mu.Lock()
	if q.syncing {
		q.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	q.syncing = true
	snapshot, err := q.store.Load()
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.syncing = false
		q.mu.Unlock()
	}()

	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	for i := range snapshot {
		action := snapshot[i]
		if ctx.Err() != nil {
			break
		}

		deliverErr := q.deliverer.Deliver(ctx, &action)
		if deliverErr == nil {
			if err := q.removeAction(action.ID); err != nil {
				return result, err
			}
			result.Delivered++
			continue
		}

		if action.RetryCount+1 < q.maxRetries {
			if err := q.bumpRetry(action.ID); err != nil {
				return result, err
			}
			result.Kept++
			q.logger.WithFields(logger.Fields{
				logger.FieldActionID: action.ID,
				"retry_count":        action.RetryCount + 1,
			}).WithError(deliverErr).Debug("Action delivery failed, kept for retry")
			continue
		}

		// Retry budget exhausted: the action is dropped. Data loss is possible
		// by design past the budget and must be visible in the log.
		if err := q.removeAction(action.ID); err != nil {
			return result, err
		}
		result.Dropped++
		q.logger.WithFields(logger.Fields{
			logger.FieldActionID: action.ID,
			"action_type":        action.Type,
			"entity":             action.Entity,
		}).WithError(deliverErr).Warn("Action dropped after exhausting retry budget")
	}

	if result.Delivered > 0 || result.Dropped > 0 {
		q.notifier.QueueFlushed(ctx, result.Delivered, result.Dropped)
	}

	return result, nil
}

// removeAction deletes one action from the durable queue by ID.
func (q *Queue) removeAction(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	actions, err := q.store.Load()
	if err != nil {
		return err
	}
	kept := actions[:0]
	for _, a := range actions {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	return q.store.Save(kept)
}

// bumpRetry increments the retry counter of one action in the durable queue.
func (q *Queue) bumpRetry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	actions, err := q.store.Load()
	if err != nil {
		return err
	}
	for i := range actions {
		if actions[i].ID == id {
			actions[i].RetryCount++
			break
		}
	}
	return q.store.Save(actions)
}

// Clear empties the queue unconditionally. Used for logout and account reset.
// Parameters:
//   - ctx: context for cancellation and deadlines (unused, kept for symmetry).
// Returns:
//   - error: non-nil if the store cannot be persisted.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.Save([]PendingAction{}); err != nil {
		return err
	}
	q.logger.Info("Offline action queue cleared")
	return nil
}

// SetOnline records a connectivity change. The offline-to-online transition
// triggers a sync pass in the background; other transitions only update the
// flag.
// Parameters:
//   - online: current connectivity.
// Returns: none.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	wasOnline := q.online
	q.online = online
	q.mu.Unlock()

	if online && !wasOnline {
		q.logger.Info("Back online, flushing offline action queue")
		go q.trigger(context.Background())
	}
}

// Online reports the current connectivity flag.
func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// Run triggers periodic sync passes while online until the context is
// cancelled.
// Parameters:
//   - ctx: context controlling the loop lifetime.
//   - interval: time between scheduled passes.
// Returns: none.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if q.Online() {
				q.trigger(ctx)
			}
		}
	}
}

// trigger runs a sync pass, treating an in-flight pass as a no-op.
func (q *Queue) trigger(ctx context.Context) {
	if _, err := q.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		q.logger.WithError(err).Error("Offline queue sync failed")
	}
}
