package service

import (
	"context"
	"errors"
	"fmt"

	"dropflow/internal/domain"
	"dropflow/internal/logger"
	"dropflow/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrStagingNotFound is returned when a staging product does not exist or
// belongs to another owner.
var ErrStagingNotFound = errors.New("staging product not found")

// PromotionService moves staging products into the canonical catalog exactly
// once. Callers may invoke Promote any number of times for the same staging ID
// and always observe the same product ID.
type PromotionService struct {
	stagingRepo *repository.StagingProductRepository
	productRepo *repository.ProductRepository
	logger      *logger.Logger
	markup      float64
}

// PromotionConfig holds configuration for the promotion service.
type PromotionConfig struct {
	// DefaultMarkup is the sell-price/cost multiplier used to fill whichever
	// of the two prices the staging record is missing.
	DefaultMarkup float64
}

// NewPromotionService creates a new promotion service.
// Parameters:
//   - stagingRepo: staging product repository.
//   - productRepo: canonical product repository.
//   - log: logger instance.
//   - cfg: promotion configuration; nil uses defaults.
// Returns:
//   - *PromotionService: initialized service.
func NewPromotionService(
	stagingRepo *repository.StagingProductRepository,
	productRepo *repository.ProductRepository,
	log *logger.Logger,
	cfg *PromotionConfig,
) *PromotionService {
	markup := 2.5
	if cfg != nil && cfg.DefaultMarkup > 0 {
		markup = cfg.DefaultMarkup
	}
	return &PromotionService{
		stagingRepo: stagingRepo,
		productRepo: productRepo,
		logger:      log,
		markup:      markup,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *PromotionService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// PromoteResult is the per-staging-ID outcome of a promotion.
type PromoteResult struct {
	StagingID string `json:"id"`
	Success   bool   `json:"success"`
	ProductID string `json:"product_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Promote creates a canonical product from a staging product. Idempotent: an
// already-promoted staging record returns the existing product ID immediately
// with no side effects. Two concurrent calls for the same ID cannot create two
// canonical records; the staging row carries the conditional promoted link, so
// the loser of the race deletes its own insert and reports the winner's
// product ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owning account ID.
//   - stagingID: staging product to promote.
// Returns:
//   - *PromoteResult: success flag with product ID, or a per-id error.
//   - error: ErrStagingNotFound when the staging row is missing or owned by
//     someone else; storage faults otherwise.
func (s *PromotionService) Promote(ctx context.Context, ownerID, stagingID string) (*PromoteResult, error) {
	sp, err := s.stagingRepo.GetOwned(ctx, ownerID, stagingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStagingNotFound
		}
		return nil, fmt.Errorf("failed to load staging product: %w", err)
	}

	// Exactly-once guarantee: repeated calls observe the original product.
	if sp.PromotionStatus == domain.PromotionStatusPromoted {
		if sp.PromotedToID == nil {
			return nil, fmt.Errorf("staging product %s promoted without linked product", stagingID)
		}
		return &PromoteResult{StagingID: stagingID, Success: true, ProductID: *sp.PromotedToID}, nil
	}

	product := s.buildProduct(sp)
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	linked, err := s.stagingRepo.MarkPromoted(ctx, stagingID, product.ID)
	if err != nil {
		// The product insert succeeded but the link write failed. Compensate by
		// removing the unlinked product rather than leaving an orphan.
		if delErr := s.productRepo.Delete(ctx, product.ID); delErr != nil {
			s.log(ctx).WithField("product_id", product.ID).WithError(delErr).Error("Failed to roll back unlinked product")
		}
		return nil, fmt.Errorf("failed to link staging product: %w", err)
	}

	if !linked {
		// A concurrent caller promoted first. Drop our insert and return the
		// winner's product so both callers observe the same ID.
		if delErr := s.productRepo.Delete(ctx, product.ID); delErr != nil {
			s.log(ctx).WithField("product_id", product.ID).WithError(delErr).Error("Failed to roll back losing promotion insert")
		}
		winner, err := s.stagingRepo.GetOwned(ctx, ownerID, stagingID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload staging product after promotion race: %w", err)
		}
		if winner.PromotedToID == nil {
			return nil, fmt.Errorf("staging product %s promoted without linked product", stagingID)
		}
		return &PromoteResult{StagingID: stagingID, Success: true, ProductID: *winner.PromotedToID}, nil
	}

	s.log(ctx).WithFields(logger.Fields{
		"staging_id": stagingID,
		"product_id": product.ID,
	}).Info("Staging product promoted")

	return &PromoteResult{StagingID: stagingID, Success: true, ProductID: product.ID}, nil
}

// buildProduct derives a canonical draft product from staging fields, filling
// missing prices from the markup heuristic. Promotion never auto-publishes.
func (s *PromotionService) buildProduct(sp *domain.StagingProduct) *domain.Product {
	cost := sp.CostPrice
	price := sp.Price
	switch {
	case price <= 0 && cost > 0:
		price = cost * s.markup
	case cost <= 0 && price > 0:
		cost = price / s.markup
	}

	currency := sp.Currency
	if currency == "" {
		currency = "USD"
	}

	return &domain.Product{
		ID:          uuid.New().String(),
		OwnerID:     sp.OwnerID,
		StagingID:   sp.ID,
		Title:       sp.Title,
		Description: sp.Description,
		ImageURL:    sp.ImageURL,
		CostPrice:   cost,
		Price:       price,
		Currency:    currency,
		Status:      domain.ProductStatusDraft,
	}
}

// PromoteBatchResult is the response of PromoteBatch.
type PromoteBatchResult struct {
	Total    int             `json:"total"`
	Promoted int             `json:"promoted"`
	Failed   int             `json:"failed"`
	Results  []PromoteResult `json:"results"`
}

// PromoteBatch promotes staging products sequentially. One ID's failure never
// aborts the batch; every ID gets a result entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owning account ID.
//   - stagingIDs: staging products to promote, in order.
// Returns:
//   - *PromoteBatchResult: aggregate counts plus per-id results.
func (s *PromotionService) PromoteBatch(ctx context.Context, ownerID string, stagingIDs []string) *PromoteBatchResult {
	result := &PromoteBatchResult{
		Total:   len(stagingIDs),
		Results: make([]PromoteResult, 0, len(stagingIDs)),
	}

	for _, id := range stagingIDs {
		res, err := s.Promote(ctx, ownerID, id)
		if err != nil {
			result.Failed++
			result.Results = append(result.Results, PromoteResult{
				StagingID: id,
				Success:   false,
				Error:     err.Error(),
			})
			continue
		}
		result.Promoted++
		result.Results = append(result.Results, *res)
	}

	return result
}
