package repository

import (
	"context"

	"dropflow/internal/domain"
	"gorm.io/gorm"
)

// StagingProductRepository handles staging product data operations.
type StagingProductRepository struct {
	db *gorm.DB
}

// NewStagingProductRepository creates a new StagingProductRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *StagingProductRepository: repository instance bound to db.
func NewStagingProductRepository(db *gorm.DB) *StagingProductRepository {
	return &StagingProductRepository{db: db}
}

// Create inserts a new staging product record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sp: staging product to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *StagingProductRepository) Create(ctx context.Context, sp *domain.StagingProduct) error {
	return r.db.WithContext(ctx).Create(sp).Error
}

// GetOwned retrieves a staging product by ID scoped to an owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owning account ID.
//   - id: staging product ID.
// Returns:
//   - *domain.StagingProduct: record if found and owned by ownerID.
//   - error: non-nil if lookup fails (gorm.ErrRecordNotFound for other owners).
func (r *StagingProductRepository) GetOwned(ctx context.Context, ownerID, id string) (*domain.StagingProduct, error) {
	var sp domain.StagingProduct
	if err := r.db.WithContext(ctx).First(&sp, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
		return nil, err
	}
	return &sp, nil
}

// MarkReady transitions a staging product from none to pending, signalling it
// has passed external review and may be promoted.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: staging product ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *StagingProductRepository) MarkReady(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.StagingProduct{}).
		Where("id = ? AND promotion_status = ?", id, domain.PromotionStatusNone).
		Update("promotion_status", domain.PromotionStatusPending).Error
}

// MarkPromoted links a staging product to its canonical record. The write is
// conditional on the row not being promoted yet, which makes the staging row
// the atomic check-and-set point for the exactly-once promotion guarantee:
// when two callers race, exactly one sees RowsAffected == 1.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: staging product ID.
//   - productID: canonical product ID to link, write-once.
// Returns:
//   - bool: true if this call performed the promotion link.
//   - error: non-nil if the update fails.
func (r *StagingProductRepository) MarkPromoted(ctx context.Context, id, productID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.StagingProduct{}).
		Where("id = ? AND promotion_status <> ?", id, domain.PromotionStatusPromoted).
		Updates(map[string]interface{}{
			"promotion_status": domain.PromotionStatusPromoted,
			"promoted_to_id":   productID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListByPromotionStatus retrieves staging products for an owner by promotion status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owning account ID.
//   - status: promotion status to filter by.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.StagingProduct: matching records.
//   - error: non-nil if the query fails.
func (r *StagingProductRepository) ListByPromotionStatus(ctx context.Context, ownerID string, status domain.PromotionStatus, limit, offset int) ([]domain.StagingProduct, error) {
	var sps []domain.StagingProduct
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND promotion_status = ?", ownerID, status).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sps).Error; err != nil {
		return nil, err
	}
	return sps, nil
}
