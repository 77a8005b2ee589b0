package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dropflow/internal/domain"
)

func seedJobWithItems(t *testing.T, jobRepo *ImportJobRepository, itemRepo *ImportItemRepository, n int) (*domain.ImportJob, []domain.ImportItem) {
	t.Helper()
	ctx := context.Background()

	job := &domain.ImportJob{
		ID:         uuid.New().String(),
		OwnerID:    "owner-1",
		Source:     "csv",
		Status:     domain.JobStatusRunning,
		TotalItems: int64(n),
	}
	require.NoError(t, jobRepo.Create(ctx, job))

	items := make([]domain.ImportItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.ImportItem{
			ID:         uuid.New().String(),
			JobID:      job.ID,
			LineNumber: i,
			Status:     domain.ItemStatusPending,
			RawData:    domain.JSONMap{"sku": i},
		})
	}
	require.NoError(t, itemRepo.BulkCreate(ctx, items))
	return job, items
}

// TestMarkSuccessIsTerminal verifies that a success outcome settles the row
// for good: later failure writes and retry requests affect nothing.
func TestMarkSuccessIsTerminal(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewImportJobRepository(db)
	itemRepo := NewImportItemRepository(db)
	ctx := context.Background()

	_, items := seedJobWithItems(t, jobRepo, itemRepo, 1)
	id := items[0].ID

	productID := "prod-1"
	settled, err := itemRepo.MarkSuccess(ctx, id, &productID)
	require.NoError(t, err)
	assert.True(t, settled)

	// A racing failure write loses.
	settled, err = itemRepo.MarkFailed(ctx, id, domain.ErrorCodeTransient, "timeout")
	require.NoError(t, err)
	assert.False(t, settled)

	// A retry request against a succeeded row is a silent no-op.
	settled, err = itemRepo.MarkRetrying(ctx, id, 3)
	require.NoError(t, err)
	assert.False(t, settled)

	item, err := itemRepo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusSuccess, item.Status)
	require.NotNil(t, item.ProductID)
	assert.Equal(t, "prod-1", *item.ProductID)
	assert.Equal(t, 0, item.RetryCount)
	assert.NotNil(t, item.ProcessedAt)
}

// TestMarkRetryingBudget verifies the retry budget: each retry increments the
// counter, and a row at the budget cannot be re-queued again.
func TestMarkRetryingBudget(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewImportJobRepository(db)
	itemRepo := NewImportItemRepository(db)
	ctx := context.Background()

	_, items := seedJobWithItems(t, jobRepo, itemRepo, 1)
	id := items[0].ID

	for attempt := 1; attempt <= 3; attempt++ {
		settled, err := itemRepo.MarkFailed(ctx, id, domain.ErrorCodeTransient, "supplier timeout")
		require.NoError(t, err)
		require.True(t, settled)

		ok, err := itemRepo.MarkRetrying(ctx, id, 3)
		require.NoError(t, err)
		require.True(t, ok, "retry %d should be within budget", attempt)

		item, err := itemRepo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemStatusRetrying, item.Status)
		assert.Equal(t, attempt, item.RetryCount)
	}

	// Fourth failure exhausts the budget.
	settled, err := itemRepo.MarkFailed(ctx, id, domain.ErrorCodeTransient, "supplier timeout")
	require.NoError(t, err)
	require.True(t, settled)

	ok, err := itemRepo.MarkRetrying(ctx, id, 3)
	require.NoError(t, err)
	assert.False(t, ok, "retry past the budget must be a no-op")

	item, err := itemRepo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusFailed, item.Status)
	assert.Equal(t, 3, item.RetryCount)
}

// TestMarkRetryingRequiresFailed verifies that only failed rows are re-queued.
func TestMarkRetryingRequiresFailed(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewImportJobRepository(db)
	itemRepo := NewImportItemRepository(db)
	ctx := context.Background()

	_, items := seedJobWithItems(t, jobRepo, itemRepo, 1)

	ok, err := itemRepo.MarkRetrying(ctx, items[0].ID, 3)
	require.NoError(t, err)
	assert.False(t, ok, "pending rows are not retry targets")
}

// TestCountByStatusInvariant verifies that Total always equals the sum of the
// per-status buckets, across a mix of transitions.
func TestCountByStatusInvariant(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewImportJobRepository(db)
	itemRepo := NewImportItemRepository(db)
	ctx := context.Background()

	job, items := seedJobWithItems(t, jobRepo, itemRepo, 6)

	_, err := itemRepo.MarkSuccess(ctx, items[0].ID, nil)
	require.NoError(t, err)
	_, err = itemRepo.MarkSuccess(ctx, items[1].ID, nil)
	require.NoError(t, err)
	_, err = itemRepo.MarkFailed(ctx, items[2].ID, domain.ErrorCodeValidation, "missing title")
	require.NoError(t, err)
	_, err = itemRepo.MarkFailed(ctx, items[3].ID, domain.ErrorCodeTransient, "timeout")
	require.NoError(t, err)
	_, err = itemRepo.MarkRetrying(ctx, items[3].ID, 3)
	require.NoError(t, err)

	stats, err := itemRepo.CountByStatus(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(2), stats.Success)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Retrying)
	assert.Equal(t, stats.Total, stats.Pending+stats.Success+stats.Failed+stats.Retrying)
}

// TestListPageOrdering verifies stable line-number ordering and the status filter.
func TestListPageOrdering(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewImportJobRepository(db)
	itemRepo := NewImportItemRepository(db)
	ctx := context.Background()

	job, items := seedJobWithItems(t, jobRepo, itemRepo, 5)
	_, err := itemRepo.MarkFailed(ctx, items[1].ID, domain.ErrorCodeValidation, "bad row")
	require.NoError(t, err)
	_, err = itemRepo.MarkFailed(ctx, items[4].ID, domain.ErrorCodeValidation, "bad row")
	require.NoError(t, err)

	page, total, err := itemRepo.ListPage(ctx, job.ID, "", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{page[0].LineNumber, page[1].LineNumber, page[2].LineNumber})

	failed, total, err := itemRepo.ListPage(ctx, job.ID, domain.ItemStatusFailed, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, failed, 2)
	assert.Equal(t, 1, failed[0].LineNumber)
	assert.Equal(t, 4, failed[1].LineNumber)
}

// TestListByIDsScopedToJob verifies that item lookups cannot cross jobs.
func TestListByIDsScopedToJob(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewImportJobRepository(db)
	itemRepo := NewImportItemRepository(db)
	ctx := context.Background()

	jobA, itemsA := seedJobWithItems(t, jobRepo, itemRepo, 2)
	_, itemsB := seedJobWithItems(t, jobRepo, itemRepo, 2)

	got, err := itemRepo.ListByIDs(ctx, jobA.ID, []string{itemsA[0].ID, itemsB[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, itemsA[0].ID, got[0].ID)
}

// TestMarkCompletedConditional verifies the one-shot job settle: only a
// running job transitions, and only the first caller observes the flip.
func TestMarkCompletedConditional(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewImportJobRepository(db)
	itemRepo := NewImportItemRepository(db)
	ctx := context.Background()

	job, _ := seedJobWithItems(t, jobRepo, itemRepo, 1)

	settled, err := jobRepo.MarkCompleted(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, settled)

	settled, err = jobRepo.MarkCompleted(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, settled, "second settle must observe a no-op")

	got, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

// TestUpdateStatusReopenKeepsStartedAt verifies that flipping a completed job
// back to running clears completed_at but keeps the original start time.
func TestUpdateStatusReopenKeepsStartedAt(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewImportJobRepository(db)
	itemRepo := NewImportItemRepository(db)
	ctx := context.Background()

	job, _ := seedJobWithItems(t, jobRepo, itemRepo, 1)

	require.NoError(t, jobRepo.UpdateStatus(ctx, job.ID, domain.JobStatusRunning))
	first, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, first.StartedAt)

	_, err = jobRepo.MarkCompleted(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, jobRepo.UpdateStatus(ctx, job.ID, domain.JobStatusRunning))
	reopened, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
	require.NotNil(t, reopened.StartedAt)
	assert.Equal(t, first.StartedAt.Unix(), reopened.StartedAt.Unix())
}
