package repository

import (
	"context"
	"time"

	"dropflow/internal/domain"
	"gorm.io/gorm"
)

// ImportItemRepository handles import item data operations. All outcome and
// retry writes are conditional on the current row status so that concurrent
// writers cannot interleave into an invalid state; the loser of a race is a
// silent no-op reported through the affected-row count.
type ImportItemRepository struct {
	db *gorm.DB
}

// NewImportItemRepository creates a new ImportItemRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ImportItemRepository: repository instance bound to db.
func NewImportItemRepository(db *gorm.DB) *ImportItemRepository {
	return &ImportItemRepository{db: db}
}

// BulkCreate inserts all items of a job in one batch.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - items: item records to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ImportItemRepository) BulkCreate(ctx context.Context, items []domain.ImportItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(items, 200).Error
}

// GetByID retrieves an item by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: item ID.
// Returns:
//   - *domain.ImportItem: item record if found.
//   - error: non-nil if lookup fails.
func (r *ImportItemRepository) GetByID(ctx context.Context, id string) (*domain.ImportItem, error) {
	var item domain.ImportItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// CountByStatus computes per-status counts for a job with a single grouped
// query. The returned stats derive Total from the same scan, which keeps the
// total == pending+success+failed+retrying invariant by construction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job ID.
// Returns:
//   - *domain.JobStats: per-status counts.
//   - error: non-nil if the query fails.
func (r *ImportItemRepository) CountByStatus(ctx context.Context, jobID string) (*domain.JobStats, error) {
	type row struct {
		Status domain.ItemStatus
		N      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&domain.ImportItem{}).
		Select("status, count(*) as n").
		Where("job_id = ?", jobID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &domain.JobStats{}
	for _, rw := range rows {
		stats.Total += rw.N
		switch rw.Status {
		case domain.ItemStatusPending:
			stats.Pending = rw.N
		case domain.ItemStatusRetrying:
			stats.Retrying = rw.N
		case domain.ItemStatusSuccess:
			stats.Success = rw.N
		case domain.ItemStatusFailed:
			stats.Failed = rw.N
		}
	}
	return stats, nil
}

// ListPage retrieves one page of a job's items in line order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job ID.
//   - status: item status to filter by; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.ImportItem: matching item records ordered by line_number.
//   - int64: total matching records before paging.
//   - error: non-nil if the query fails.
func (r *ImportItemRepository) ListPage(ctx context.Context, jobID string, status domain.ItemStatus, limit, offset int) ([]domain.ImportItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.ImportItem{}).Where("job_id = ?", jobID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []domain.ImportItem
	if err := query.
		Order("line_number ASC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListByIDs retrieves items by ID scoped to a job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job ID.
//   - ids: item IDs to fetch.
// Returns:
//   - []domain.ImportItem: matching item records.
//   - error: non-nil if the query fails.
func (r *ImportItemRepository) ListByIDs(ctx context.Context, jobID string, ids []string) ([]domain.ImportItem, error) {
	if len(ids) == 0 {
		return []domain.ImportItem{}, nil
	}
	var items []domain.ImportItem
	if err := r.db.WithContext(ctx).
		Where("job_id = ? AND id IN ?", jobID, ids).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimProcessable retrieves a batch of pending/retrying items, oldest jobs
// first then line order, for the worker pool to drain.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.ImportItem: processable item records.
//   - error: non-nil if the query fails.
func (r *ImportItemRepository) ClaimProcessable(ctx context.Context, limit int) ([]domain.ImportItem, error) {
	var items []domain.ImportItem
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.ItemStatus{domain.ItemStatusPending, domain.ItemStatusRetrying}).
		Order("created_at ASC, line_number ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// MarkSuccess writes a success outcome, conditional on the item still being
// processable. Success is terminal; a row that already settled is untouched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: item ID.
//   - productID: created product ID; nil for duplicate soft successes.
// Returns:
//   - bool: true if this call settled the item.
//   - error: non-nil if the update fails.
func (r *ImportItemRepository) MarkSuccess(ctx context.Context, id string, productID *string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.ImportItem{}).
		Where("id = ? AND status IN ?", id, []domain.ItemStatus{domain.ItemStatusPending, domain.ItemStatusRetrying}).
		Updates(map[string]interface{}{
			"status":        domain.ItemStatusSuccess,
			"product_id":    productID,
			"error_code":    "",
			"error_message": "",
			"processed_at":  &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed writes a failure outcome, conditional on the item still being
// processable.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: item ID.
//   - code: error taxonomy code.
//   - message: human-readable failure detail.
// Returns:
//   - bool: true if this call settled the item.
//   - error: non-nil if the update fails.
func (r *ImportItemRepository) MarkFailed(ctx context.Context, id string, code domain.ErrorCode, message string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.ImportItem{}).
		Where("id = ? AND status IN ?", id, []domain.ItemStatus{domain.ItemStatusPending, domain.ItemStatusRetrying}).
		Updates(map[string]interface{}{
			"status":        domain.ItemStatusFailed,
			"error_code":    code,
			"error_message": message,
			"processed_at":  &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkRetrying resets a failed item for another attempt. The write is
// conditional on status = failed and an unexhausted retry budget, so a racing
// processor outcome (in particular a terminal success) always wins and the
// retry request degrades to a no-op.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: item ID.
//   - maxRetries: retry budget; rows at or past it are left untouched.
// Returns:
//   - bool: true if the item transitioned to retrying.
//   - error: non-nil if the update fails.
func (r *ImportItemRepository) MarkRetrying(ctx context.Context, id string, maxRetries int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.ImportItem{}).
		Where("id = ? AND status = ? AND retry_count < ?", id, domain.ItemStatusFailed, maxRetries).
		Updates(map[string]interface{}{
			"status":      domain.ItemStatusRetrying,
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListFailedIDs returns the IDs of all failed items of a job in line order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job ID.
// Returns:
//   - []string: failed item IDs.
//   - error: non-nil if the query fails.
func (r *ImportItemRepository) ListFailedIDs(ctx context.Context, jobID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.ImportItem{}).
		Where("job_id = ? AND status = ?", jobID, domain.ItemStatusFailed).
		Order("line_number ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
