package repository

import (
	"context"
	"time"

	"dropflow/internal/domain"
	"gorm.io/gorm"
)

// ImportJobRepository handles import job data operations.
type ImportJobRepository struct {
	db *gorm.DB
}

// NewImportJobRepository creates a new ImportJobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ImportJobRepository: repository instance bound to db.
func NewImportJobRepository(db *gorm.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ImportJobRepository) Create(ctx context.Context, job *domain.ImportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.ImportJob: job record if found.
//   - error: non-nil if lookup fails.
func (r *ImportJobRepository) GetByID(ctx context.Context, id string) (*domain.ImportJob, error) {
	var job domain.ImportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GetOwned retrieves a job by ID scoped to an owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owning account ID.
//   - id: job ID.
// Returns:
//   - *domain.ImportJob: job record if found and owned by ownerID.
//   - error: non-nil if lookup fails (gorm.ErrRecordNotFound for other owners).
func (r *ImportJobRepository) GetOwned(ctx context.Context, ownerID, id string) (*domain.ImportJob, error) {
	var job domain.ImportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateStatus sets the job status and the matching lifecycle timestamp.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - status: new job status.
// Returns:
//   - error: non-nil if the update fails.
func (r *ImportJobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error {
	updates := map[string]interface{}{"status": status}
	now := time.Now()
	switch status {
	case domain.JobStatusRunning:
		// A reopened job keeps its original start time.
		updates["started_at"] = gorm.Expr("COALESCE(started_at, ?)", now)
		updates["completed_at"] = nil
	case domain.JobStatusCompleted, domain.JobStatusFailed:
		updates["completed_at"] = &now
	}
	return r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkCompleted transitions a job to completed only while it is still running.
// The conditional write keeps a retry that raced the settle from being
// clobbered: if the job already flipped back to running with retrying items,
// the settle is a no-op.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - bool: true if the job transitioned to completed by this call.
//   - error: non-nil if the update fails.
func (r *ImportJobRepository) MarkCompleted(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusCompleted,
			"completed_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListByStatus retrieves jobs in the given status, oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: job status to filter by.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.ImportJob: matching job records.
//   - error: non-nil if the query fails.
func (r *ImportJobRepository) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Delete removes a job and cascades to its items.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *ImportJobRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.ImportItem{}, "job_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.ImportJob{}, "id = ?", id).Error
	})
}
