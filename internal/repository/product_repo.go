package repository

import (
	"context"

	"dropflow/internal/domain"
	"gorm.io/gorm"
)

// ProductRepository handles canonical product data operations.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProductRepository: repository instance bound to db.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts a new product record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - p: product record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID retrieves a product by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: product ID.
// Returns:
//   - *domain.Product: product record if found.
//   - error: non-nil if lookup fails.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CountByStaging counts canonical records linked to a staging ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - stagingID: originating staging product ID.
// Returns:
//   - int64: number of linked products.
//   - error: non-nil if the query fails.
func (r *ProductRepository) CountByStaging(ctx context.Context, stagingID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("staging_id = ?", stagingID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes a product by ID. Used only to compensate a promotion insert
// that lost the staging link race.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: product ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Product{}, "id = ?", id).Error
}

// ListByOwner retrieves products for an owner with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owning account ID.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Product: matching product records.
//   - error: non-nil if the query fails.
func (r *ProductRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Product, error) {
	var products []domain.Product
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
