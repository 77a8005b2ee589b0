package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dropflow/internal/domain"
	"dropflow/internal/repository"
)

func newPromotionFixture(t *testing.T) (*PromotionService, *repository.StagingProductRepository, *repository.ProductRepository) {
	t.Helper()
	db := newTestDB(t)
	stagingRepo := repository.NewStagingProductRepository(db)
	productRepo := repository.NewProductRepository(db)
	svc := NewPromotionService(stagingRepo, productRepo, newTestLogger(), &PromotionConfig{DefaultMarkup: 2.5})
	return svc, stagingRepo, productRepo
}

func seedStaging(t *testing.T, repo *repository.StagingProductRepository, sp *domain.StagingProduct) *domain.StagingProduct {
	t.Helper()
	if sp.ID == "" {
		sp.ID = uuid.New().String()
	}
	if sp.OwnerID == "" {
		sp.OwnerID = "owner-1"
	}
	if sp.PromotionStatus == "" {
		sp.PromotionStatus = domain.PromotionStatusPending
	}
	require.NoError(t, repo.Create(context.Background(), sp))
	return sp
}

// TestPromoteIdempotent verifies that repeated promotion of the same staging
// record returns the original product and never creates a second one.
func TestPromoteIdempotent(t *testing.T) {
	svc, stagingRepo, productRepo := newPromotionFixture(t)
	ctx := context.Background()

	sp := seedStaging(t, stagingRepo, &domain.StagingProduct{
		Title:     "Ceramic pour-over set",
		CostPrice: 8,
		Price:     24,
	})

	first, err := svc.Promote(ctx, "owner-1", sp.ID)
	require.NoError(t, err)
	require.True(t, first.Success)
	require.NotEmpty(t, first.ProductID)

	second, err := svc.Promote(ctx, "owner-1", sp.ID)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, first.ProductID, second.ProductID)

	count, err := productRepo.CountByStaging(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "exactly one canonical product per staging record")
}

// TestPromoteConcurrentCallsAgreeOnWinner verifies the promotion race: many
// concurrent callers all succeed, all observe the same product ID, and only
// one canonical record survives.
func TestPromoteConcurrentCallsAgreeOnWinner(t *testing.T) {
	svc, stagingRepo, productRepo := newPromotionFixture(t)
	ctx := context.Background()

	sp := seedStaging(t, stagingRepo, &domain.StagingProduct{
		Title:     "Collapsible water bottle",
		CostPrice: 3.5,
		Price:     12,
	})

	const callers = 8
	results := make([]*PromoteResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Promote(ctx, "owner-1", sp.ID)
		}(i)
	}
	wg.Wait()

	winner := ""
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.True(t, results[i].Success)
		if winner == "" {
			winner = results[i].ProductID
		}
		assert.Equal(t, winner, results[i].ProductID, "all callers must observe the same product")
	}

	count, err := productRepo.CountByStaging(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := stagingRepo.GetOwned(ctx, "owner-1", sp.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PromotedToID)
	assert.Equal(t, winner, *got.PromotedToID)
}

// TestPromoteNotFound verifies owner scoping and missing-record handling.
func TestPromoteNotFound(t *testing.T) {
	svc, stagingRepo, _ := newPromotionFixture(t)
	ctx := context.Background()

	sp := seedStaging(t, stagingRepo, &domain.StagingProduct{Title: "Travel jewelry case"})

	_, err := svc.Promote(ctx, "owner-1", "no-such-id")
	assert.ErrorIs(t, err, ErrStagingNotFound)

	_, err = svc.Promote(ctx, "owner-2", sp.ID)
	assert.ErrorIs(t, err, ErrStagingNotFound)
}

// TestPromotePricingDefaults verifies the markup heuristic and field carry-over
// on the created product.
func TestPromotePricingDefaults(t *testing.T) {
	testCases := []struct {
		name      string
		cost      float64
		price     float64
		currency  string
		wantCost  float64
		wantPrice float64
	}{
		{
			name:      "missing sell price derives from cost",
			cost:      10,
			wantCost:  10,
			wantPrice: 25,
		},
		{
			name:      "missing cost derives from sell price",
			price:     25,
			wantCost:  10,
			wantPrice: 25,
		},
		{
			name:      "both prices kept as-is",
			cost:      4,
			price:     9,
			currency:  "EUR",
			wantCost:  4,
			wantPrice: 9,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, stagingRepo, productRepo := newPromotionFixture(t)
			ctx := context.Background()

			sp := seedStaging(t, stagingRepo, &domain.StagingProduct{
				Title:     "LED plant light",
				CostPrice: tc.cost,
				Price:     tc.price,
				Currency:  tc.currency,
			})

			res, err := svc.Promote(ctx, "owner-1", sp.ID)
			require.NoError(t, err)

			product, err := productRepo.GetByID(ctx, res.ProductID)
			require.NoError(t, err)
			assert.InDelta(t, tc.wantCost, product.CostPrice, 1e-9)
			assert.InDelta(t, tc.wantPrice, product.Price, 1e-9)
			assert.Equal(t, domain.ProductStatusDraft, product.Status, "promotion never auto-publishes")
			assert.Equal(t, sp.ID, product.StagingID)
			assert.Equal(t, "LED plant light", product.Title)

			wantCurrency := tc.currency
			if wantCurrency == "" {
				wantCurrency = "USD"
			}
			assert.Equal(t, wantCurrency, product.Currency)
		})
	}
}

// TestPromoteBatchPartialFailure verifies that one bad ID never aborts the
// batch and every ID gets a result entry.
func TestPromoteBatchPartialFailure(t *testing.T) {
	svc, stagingRepo, _ := newPromotionFixture(t)
	ctx := context.Background()

	good := seedStaging(t, stagingRepo, &domain.StagingProduct{Title: "Bamboo cutlery set", CostPrice: 2})
	alreadyPromoted := seedStaging(t, stagingRepo, &domain.StagingProduct{Title: "Wool dryer balls", CostPrice: 3})
	pre, err := svc.Promote(ctx, "owner-1", alreadyPromoted.ID)
	require.NoError(t, err)

	res := svc.PromoteBatch(ctx, "owner-1", []string{good.ID, "missing-id", alreadyPromoted.ID})
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Promoted)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 3)

	assert.True(t, res.Results[0].Success)
	assert.False(t, res.Results[1].Success)
	assert.NotEmpty(t, res.Results[1].Error)
	assert.True(t, res.Results[2].Success)
	assert.Equal(t, pre.ProductID, res.Results[2].ProductID)
}
