package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dropflow/internal/domain"
	"dropflow/internal/logger"
	"dropflow/internal/repository"
	"dropflow/internal/service"
)

// newTestDB opens a fresh in-memory database with the full schema. A single
// connection keeps concurrent test writers from tripping over sqlite locks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repository.Migrate(db))
	return db
}

func newTestLogger() *logger.Logger {
	return logger.New(&logger.Config{
		Level:       "error",
		Format:      "json",
		Output:      io.Discard,
		ServiceName: "test",
	})
}

type countingNotifier struct {
	mu        sync.Mutex
	completed []string
}

func (n *countingNotifier) JobCompleted(_ context.Context, job *domain.ImportJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, job.ID)
}

func (n *countingNotifier) QueueFlushed(context.Context, int, int) {}

type poolFixture struct {
	itemRepo  *repository.ImportItemRepository
	importSvc *service.ImportService
	notifier  *countingNotifier
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()
	db := newTestDB(t)
	jobRepo := repository.NewImportJobRepository(db)
	itemRepo := repository.NewImportItemRepository(db)
	notifier := &countingNotifier{}
	importSvc := service.NewImportService(jobRepo, itemRepo, nil, notifier, newTestLogger(),
		&service.ImportServiceConfig{MaxRetries: 3})
	return &poolFixture{itemRepo: itemRepo, importSvc: importSvc, notifier: notifier}
}

func (f *poolFixture) newPool(t *testing.T, processor Processor) *Pool {
	t.Helper()
	return NewPool(f.itemRepo, f.importSvc, processor, newTestLogger(), &PoolConfig{
		Workers:   3,
		BatchSize: 50,
	})
}

// outcomeBySKU routes each item to a scripted outcome keyed on its raw sku.
func outcomeBySKU(outcomes map[int]Outcome) ProcessorFunc {
	return func(_ context.Context, item *domain.ImportItem) Outcome {
		sku := int(item.RawData["sku"].(float64))
		return outcomes[sku]
	}
}

func batch(n int) []domain.JSONMap {
	items := make([]domain.JSONMap, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.JSONMap{"sku": i})
	}
	return items
}

// TestRunOnceDrainsAndSettles verifies that a single wave processes every
// pending item, writes the mixed outcomes, and settles the job with exactly
// one completion notification.
func TestRunOnceDrainsAndSettles(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	res, err := f.importSvc.Start(ctx, "owner-1", "csv", batch(4), nil)
	require.NoError(t, err)

	productID := "prod-2"
	pool := f.newPool(t, outcomeBySKU(map[int]Outcome{
		0: {},
		1: {Err: NewItemError(domain.ErrorCodeValidation, "missing title")},
		2: {ProductID: productID},
		3: {Err: NewItemError(domain.ErrorCodeTransient, "supplier timeout")},
	}))

	processed, err := pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, processed)

	status, err := f.importSvc.GetStatus(ctx, "owner-1", res.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, status.Status)
	assert.Equal(t, int64(2), status.Stats.Success)
	assert.Equal(t, int64(2), status.Stats.Failed)
	assert.Equal(t, status.Stats.Total,
		status.Stats.Pending+status.Stats.Success+status.Stats.Failed+status.Stats.Retrying)
	require.Len(t, f.notifier.completed, 1)
	assert.Equal(t, res.JobID, f.notifier.completed[0])

	// The created product is linked on the succeeding item.
	page, err := f.importSvc.GetItems(ctx, "owner-1", res.JobID, 1, 10, "success")
	require.NoError(t, err)
	var linked *string
	for _, item := range page.Items {
		if item.ProductID != nil {
			linked = item.ProductID
		}
	}
	require.NotNil(t, linked)
	assert.Equal(t, productID, *linked)

	// A second wave finds nothing and never re-notifies.
	processed, err = pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Len(t, f.notifier.completed, 1)
}

// TestDuplicateIsSoftSuccess verifies that a duplicate outcome settles the
// item as success without creating a product link.
func TestDuplicateIsSoftSuccess(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	res, err := f.importSvc.Start(ctx, "owner-1", "csv", batch(1), nil)
	require.NoError(t, err)

	pool := f.newPool(t, outcomeBySKU(map[int]Outcome{
		0: {Err: NewItemError(domain.ErrorCodeDuplicate, "sku already imported")},
	}))

	_, err = pool.RunOnce(ctx)
	require.NoError(t, err)

	status, err := f.importSvc.GetStatus(ctx, "owner-1", res.JobID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Stats.Success)
	assert.Equal(t, int64(0), status.Stats.Failed)

	page, err := f.importSvc.GetItems(ctx, "owner-1", res.JobID, 1, 10, "all")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.ItemStatusSuccess, page.Items[0].Status)
	assert.Nil(t, page.Items[0].ProductID)
}

// TestFailedOutcomeRecordsTaxonomy verifies that failures carry their error
// code and message onto the row.
func TestFailedOutcomeRecordsTaxonomy(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	res, err := f.importSvc.Start(ctx, "owner-1", "csv", batch(1), nil)
	require.NoError(t, err)

	pool := f.newPool(t, outcomeBySKU(map[int]Outcome{
		0: {Err: NewItemError(domain.ErrorCodeValidation, "price must be positive")},
	}))

	_, err = pool.RunOnce(ctx)
	require.NoError(t, err)

	page, err := f.importSvc.GetItems(ctx, "owner-1", res.JobID, 1, 10, "failed")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.ErrorCodeValidation, page.Items[0].ErrorCode)
	assert.Equal(t, "price must be positive", page.Items[0].ErrorMessage)
	assert.NotNil(t, page.Items[0].ProcessedAt)
}

// TestRetriedItemsAreReprocessed verifies the full retry round trip through
// the pool: failed items re-queued by the retry path are drained by the next
// wave and the job completes again.
func TestRetriedItemsAreReprocessed(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	res, err := f.importSvc.Start(ctx, "owner-1", "csv", batch(2), nil)
	require.NoError(t, err)

	failing := f.newPool(t, outcomeBySKU(map[int]Outcome{
		0: {},
		1: {Err: NewItemError(domain.ErrorCodeTransient, "supplier timeout")},
	}))
	_, err = failing.RunOnce(ctx)
	require.NoError(t, err)

	retry, err := f.importSvc.RetryItems(ctx, "owner-1", res.JobID, nil, true)
	require.NoError(t, err)
	require.Equal(t, 1, retry.Retried)

	succeeding := f.newPool(t, outcomeBySKU(map[int]Outcome{
		1: {},
	}))
	processed, err := succeeding.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	status, err := f.importSvc.GetStatus(ctx, "owner-1", res.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, status.Status)
	assert.Equal(t, int64(2), status.Stats.Success)

	page, err := f.importSvc.GetItems(ctx, "owner-1", res.JobID, 1, 10, "all")
	require.NoError(t, err)
	for _, item := range page.Items {
		if item.LineNumber == 1 {
			assert.Equal(t, 1, item.RetryCount)
		}
	}
}
