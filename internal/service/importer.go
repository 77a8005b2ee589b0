package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"dropflow/internal/domain"
	"dropflow/internal/logger"
	"dropflow/internal/repository"
	"dropflow/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrJobNotFound is returned when a job does not exist or belongs to another owner.
var ErrJobNotFound = errors.New("import job not found")

// ErrEmptyBatch is returned when Start is called with no items.
var ErrEmptyBatch = errors.New("import batch is empty")

// ImportService orchestrates batch import jobs: it creates jobs and their item
// sets, aggregates per-job statistics, pages item listings, and re-queues
// failed items. Actual item processing happens asynchronously in the worker
// pool; Start only creates rows and returns.
type ImportService struct {
	jobRepo    *repository.ImportJobRepository
	itemRepo   *repository.ImportItemRepository
	archive    storage.ObjectStorage
	notifier   Notifier
	logger     *logger.Logger
	maxRetries int
}

// ImportServiceConfig holds configuration for the import service.
type ImportServiceConfig struct {
	MaxRetries int
}

// NewImportService creates a new import service.
// Parameters:
//   - jobRepo: import job repository.
//   - itemRepo: import item repository.
//   - archive: object storage for raw batch archival; nil disables archival.
//   - notifier: terminal-transition observer; nil disables notifications.
//   - log: logger instance.
//   - cfg: service configuration; nil uses defaults.
// Returns:
//   - *ImportService: initialized service.
func NewImportService(
	jobRepo *repository.ImportJobRepository,
	itemRepo *repository.ImportItemRepository,
	archive storage.ObjectStorage,
	notifier Notifier,
	log *logger.Logger,
	cfg *ImportServiceConfig,
) *ImportService {
	maxRetries := 3
	if cfg != nil && cfg.MaxRetries > 0 {
		maxRetries = cfg.MaxRetries
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ImportService{
		jobRepo:    jobRepo,
		itemRepo:   itemRepo,
		archive:    archive,
		notifier:   notifier,
		logger:     log,
		maxRetries: maxRetries,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *ImportService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// MaxRetries returns the per-item retry budget.
func (s *ImportService) MaxRetries() int {
	return s.maxRetries
}

// StartResult is the response of Start.
type StartResult struct {
	JobID string `json:"job_id"`
	Total int    `json:"total"`
}

// Start creates an import job and one pending item per input element, in input
// order. Line numbers are assigned from the input index for deterministic
// paging and error reporting. The call returns as soon as the rows exist;
// processing is picked up asynchronously by the worker pool.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owning account ID.
//   - source: batch source identifier.
//   - items: raw records, one per item.
//   - metadata: opaque job metadata.
// Returns:
//   - *StartResult: job ID and item total.
//   - error: ErrEmptyBatch for empty input, otherwise storage errors.
func (s *ImportService) Start(ctx context.Context, ownerID, source string, items []domain.JSONMap, metadata domain.JSONMap) (*StartResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	job := &domain.ImportJob{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Source:     source,
		Status:     domain.JobStatusCreated,
		TotalItems: int64(len(items)),
		Metadata:   metadata,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}

	rows := make([]domain.ImportItem, 0, len(items))
	for i, raw := range items {
		rows = append(rows, domain.ImportItem{
			ID:         uuid.New().String(),
			JobID:      job.ID,
			LineNumber: i,
			Status:     domain.ItemStatusPending,
			RawData:    raw,
		})
	}
	if err := s.itemRepo.BulkCreate(ctx, rows); err != nil {
		// Orchestration-level fault: the job exists but its item set does not.
		// This is the one path that marks a job failed.
		if stErr := s.jobRepo.UpdateStatus(ctx, job.ID, domain.JobStatusFailed); stErr != nil {
			s.log(ctx).WithField(logger.FieldJobID, job.ID).WithError(stErr).Error("Failed to mark job failed after item insert fault")
		}
		return nil, fmt.Errorf("failed to create import items: %w", err)
	}

	if err := s.jobRepo.UpdateStatus(ctx, job.ID, domain.JobStatusRunning); err != nil {
		return nil, fmt.Errorf("failed to start import job: %w", err)
	}

	s.archiveBatch(ctx, job.ID, items)

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID:  job.ID,
		logger.FieldSource: source,
		logger.FieldCount:  len(items),
	}).Info("Import job started")

	return &StartResult{JobID: job.ID, Total: len(items)}, nil
}

// archiveBatch uploads the raw batch payload for audit. Best effort: archival
// failures are logged and never fail the job.
func (s *ImportService) archiveBatch(ctx context.Context, jobID string, items []domain.JSONMap) {
	if s.archive == nil {
		return
	}
	payload, err := json.Marshal(items)
	if err != nil {
		s.log(ctx).WithField(logger.FieldJobID, jobID).WithError(err).Warn("Failed to encode batch for archival")
		return
	}
	key := fmt.Sprintf("imports/%s.json", jobID)
	if err := s.archive.Upload(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		s.log(ctx).WithField(logger.FieldJobID, jobID).WithError(err).Warn("Failed to archive batch payload")
	}
}

// JobStatusResult is the response of GetStatus.
type JobStatusResult struct {
	JobID           string           `json:"job_id"`
	Status          domain.JobStatus `json:"status"`
	Stats           domain.JobStats  `json:"stats"`
	ProgressPercent int              `json:"progress_percent"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// GetStatus returns the job status with stats recomputed from the current item
// rows. The aggregate is a snapshot, not a transactionally isolated view;
// polling clients tolerate eventual consistency. A running job with no
// pending or retrying items is settled to completed here.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owning account ID.
//   - jobID: job to inspect.
// Returns:
//   - *JobStatusResult: status, stats, and progress percentage.
//   - error: ErrJobNotFound if missing or owned by someone else.
func (s *ImportService) GetStatus(ctx context.Context, ownerID, jobID string) (*JobStatusResult, error) {
	job, err := s.jobRepo.GetOwned(ctx, ownerID, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	stats, err := s.itemRepo.CountByStatus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate job stats: %w", err)
	}

	if job.Status == domain.JobStatusRunning && stats.Pending == 0 && stats.Retrying == 0 {
		if settled, err := s.settleJob(ctx, job); err != nil {
			return nil, err
		} else if settled {
			job.Status = domain.JobStatusCompleted
			now := time.Now()
			job.CompletedAt = &now
		}
	}

	progress := 0
	if stats.Total > 0 {
		progress = int(math.Round(100 * float64(stats.Success+stats.Failed) / float64(stats.Total)))
	}

	return &JobStatusResult{
		JobID:           job.ID,
		Status:          job.Status,
		Stats:           *stats,
		ProgressPercent: progress,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}, nil
}

// settleJob flips a running job to completed and fires the one-time
// notification. The conditional repository write guarantees the notification
// fires once per settle even with concurrent pollers.
func (s *ImportService) settleJob(ctx context.Context, job *domain.ImportJob) (bool, error) {
	settled, err := s.jobRepo.MarkCompleted(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	if settled {
		s.log(ctx).WithField(logger.FieldJobID, job.ID).Info("Import job completed")
		s.notifier.JobCompleted(ctx, job)
	}
	return settled, nil
}

// SettleJobIfDone recomputes a job's stats and settles it to completed when no
// item remains pending or retrying. Used by the worker pool after outcomes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to check.
// Returns:
//   - bool: true if the job transitioned to completed by this call.
//   - error: non-nil if the check or update fails.
func (s *ImportService) SettleJobIfDone(ctx context.Context, jobID string) (bool, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrJobNotFound
		}
		return false, fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status != domain.JobStatusRunning {
		return false, nil
	}
	stats, err := s.itemRepo.CountByStatus(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to aggregate job stats: %w", err)
	}
	if stats.Pending != 0 || stats.Retrying != 0 {
		return false, nil
	}
	return s.settleJob(ctx, job)
}

// PageMeta describes one page of a listing.
type PageMeta struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

// ItemPageResult is the response of GetItems.
type ItemPageResult struct {
	Items []domain.ImportItem `json:"items"`
	Meta  PageMeta            `json:"meta"`
}

// GetItems returns one page of a job's items in stable line_number order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owning account ID.
//   - jobID: job to list.
//   - page: 1-based page number; values < 1 clamp to 1.
//   - perPage: page size; values < 1 default to 20, capped at 200.
//   - statusFilter: item status to filter by; empty or "all" means all.
// Returns:
//   - *ItemPageResult: items plus paging metadata.
//   - error: ErrJobNotFound if missing or owned by someone else.
func (s *ImportService) GetItems(ctx context.Context, ownerID, jobID string, page, perPage int, statusFilter string) (*ItemPageResult, error) {
	if _, err := s.jobRepo.GetOwned(ctx, ownerID, jobID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 200 {
		perPage = 200
	}

	var status domain.ItemStatus
	switch statusFilter {
	case "", "all":
		status = ""
	case string(domain.ItemStatusPending), string(domain.ItemStatusRetrying),
		string(domain.ItemStatusSuccess), string(domain.ItemStatusFailed):
		status = domain.ItemStatus(statusFilter)
	default:
		return nil, fmt.Errorf("invalid status filter %q", statusFilter)
	}

	items, total, err := s.itemRepo.ListPage(ctx, jobID, status, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	return &ItemPageResult{
		Items: items,
		Meta:  PageMeta{Page: page, PerPage: perPage, Total: total},
	}, nil
}
