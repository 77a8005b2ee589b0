package service

import (
	"context"
	"errors"
	"fmt"

	"dropflow/internal/domain"
	"dropflow/internal/logger"
	"gorm.io/gorm"
)

// RetryResult is the response of RetryItems.
type RetryResult struct {
	Retried int `json:"retried"`
}

// RetryItems re-queues failed items of a job for another processing attempt.
// Exactly one of itemIDs or retryAllFailed is meaningful; explicit IDs take
// precedence when both are given. Only items currently failed with an
// unexhausted retry budget transition to retrying; items that are already
// success, pending, or retrying, or failed past the budget, are silently
// skipped. Each transition is a conditional row update, so a concurrent
// processor writing a terminal success to the same row always wins. When at
// least one item was re-queued, a completed job is flipped back to running.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owning account ID.
//   - jobID: job whose items to retry.
//   - itemIDs: explicit item IDs to retry; nil with retryAllFailed targets all failed items.
//   - retryAllFailed: retry every failed item of the job.
// Returns:
//   - *RetryResult: count of items actually transitioned to retrying.
//   - error: ErrJobNotFound if the job is missing or owned by someone else.
func (s *ImportService) RetryItems(ctx context.Context, ownerID, jobID string, itemIDs []string, retryAllFailed bool) (*RetryResult, error) {
	job, err := s.jobRepo.GetOwned(ctx, ownerID, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var targets []string
	if len(itemIDs) > 0 {
		// Explicit IDs take precedence over retry_all_failed. Scope them to the
		// job so callers cannot reach into other jobs' items.
		items, err := s.itemRepo.ListByIDs(ctx, jobID, itemIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve retry targets: %w", err)
		}
		for _, it := range items {
			targets = append(targets, it.ID)
		}
	} else if retryAllFailed {
		targets, err = s.itemRepo.ListFailedIDs(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("failed to list failed items: %w", err)
		}
	}

	retried := 0
	for _, id := range targets {
		ok, err := s.itemRepo.MarkRetrying(ctx, id, s.maxRetries)
		if err != nil {
			return nil, fmt.Errorf("failed to re-queue item %s: %w", id, err)
		}
		if ok {
			retried++
		}
	}

	if retried > 0 && job.Status == domain.JobStatusCompleted {
		if err := s.jobRepo.UpdateStatus(ctx, jobID, domain.JobStatusRunning); err != nil {
			return nil, fmt.Errorf("failed to reopen job: %w", err)
		}
		s.log(ctx).WithField(logger.FieldJobID, jobID).Info("Completed job reopened for retry")
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID: jobID,
		logger.FieldCount: retried,
	}).Info("Retry requested")

	return &RetryResult{Retried: retried}, nil
}
