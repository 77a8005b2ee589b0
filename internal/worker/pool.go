package worker

import (
	"context"
	"sync"
	"time"

	"dropflow/internal/domain"
	"dropflow/internal/logger"
	"dropflow/internal/repository"
	"dropflow/internal/service"
)

// Pool drains pending/retrying import items and writes their outcomes back
// through conditional updates. It is the consumer half of the decoupled
// producer/consumer split: ImportService.Start only creates rows; the pool
// claims them in waves, fans them out to workers, and settles jobs whose last
// item finished. Outcome writes are compare-and-set on the current item
// status, so a wave that races a retry request or a duplicate pool instance
// degrades to silent no-ops instead of corrupting state.
type Pool struct {
	itemRepo  *repository.ImportItemRepository
	importSvc *service.ImportService
	processor Processor
	logger    *logger.Logger

	workers      int
	batchSize    int
	pollInterval time.Duration
}

// PoolConfig holds configuration for the worker pool.
type PoolConfig struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
}

// NewPool creates a new worker pool.
// Parameters:
//   - itemRepo: import item repository.
//   - importSvc: import service used to settle finished jobs.
//   - processor: item processor collaborator.
//   - log: logger instance.
//   - cfg: pool configuration; nil uses defaults.
// Returns:
//   - *Pool: initialized pool.
func NewPool(
	itemRepo *repository.ImportItemRepository,
	importSvc *service.ImportService,
	processor Processor,
	log *logger.Logger,
	cfg *PoolConfig,
) *Pool {
	if cfg == nil {
		cfg = &PoolConfig{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Pool{
		itemRepo:     itemRepo,
		importSvc:    importSvc,
		processor:    processor,
		logger:       log,
		workers:      workers,
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (p *Pool) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.logger
}

// Run claims and processes items until the context is cancelled. Idle polls
// sleep for the configured interval.
// Parameters:
//   - ctx: context controlling the pool lifetime.
// Returns: none.
func (p *Pool) Run(ctx context.Context) {
	p.log(ctx).WithFields(logger.Fields{
		"workers":    p.workers,
		"batch_size": p.batchSize,
	}).Info("Worker pool started")

	for {
		select {
		case <-ctx.Done():
			p.log(ctx).Info("Worker pool stopped")
			return
		default:
		}

		processed, err := p.RunOnce(ctx)
		if err != nil {
			p.log(ctx).WithError(err).Error("Worker wave failed")
		}
		if processed == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(p.pollInterval):
			}
		}
	}
}

// RunOnce claims one wave of processable items, processes them with the
// worker fan-out, and settles any job whose items all finished.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int: number of items processed in this wave.
//   - error: non-nil if the claim query fails.
func (p *Pool) RunOnce(ctx context.Context) (int, error) {
	items, err := p.itemRepo.ClaimProcessable(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	itemsChan := make(chan domain.ImportItem, p.workers*2)
	jobIDs := make(map[string]struct{}, 4)
	var jobIDsMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemsChan {
				if ctx.Err() != nil {
					return
				}
				p.processOne(ctx, &item)
				jobIDsMu.Lock()
				jobIDs[item.JobID] = struct{}{}
				jobIDsMu.Unlock()
			}
		}()
	}

	for _, item := range items {
		select {
		case itemsChan <- item:
		case <-ctx.Done():
		}
	}
	close(itemsChan)
	wg.Wait()

	// Settle every job this wave touched; the conditional completed write
	// keeps concurrent pollers from double-notifying.
	for jobID := range jobIDs {
		if _, err := p.importSvc.SettleJobIfDone(ctx, jobID); err != nil {
			p.log(ctx).WithField(logger.FieldJobID, jobID).WithError(err).Error("Failed to settle job")
		}
	}

	return len(items), nil
}

// processOne runs a single processing attempt and writes the outcome back.
// A conditional write that affects no row means another writer settled the
// item first; the attempt's result is discarded without error.
func (p *Pool) processOne(ctx context.Context, item *domain.ImportItem) {
	outcome := p.processor.ProcessItem(ctx, item)

	var settled bool
	var err error
	switch {
	case outcome.Err == nil:
		var productID *string
		if outcome.ProductID != "" {
			productID = &outcome.ProductID
		}
		settled, err = p.itemRepo.MarkSuccess(ctx, item.ID, productID)
	case outcome.Err.Code == domain.ErrorCodeDuplicate:
		// Soft success: the record already exists, no new product is created.
		var productID *string
		if outcome.ProductID != "" {
			productID = &outcome.ProductID
		}
		settled, err = p.itemRepo.MarkSuccess(ctx, item.ID, productID)
	default:
		settled, err = p.itemRepo.MarkFailed(ctx, item.ID, outcome.Err.Code, outcome.Err.Message)
		p.log(ctx).WithFields(logger.Fields{
			logger.FieldJobID:  item.JobID,
			logger.FieldItemID: item.ID,
			"error_code":       outcome.Err.Code,
		}).Warnf("Item processing failed: %s", outcome.Err.Message)
	}

	if err != nil {
		p.log(ctx).WithField(logger.FieldItemID, item.ID).WithError(err).Error("Failed to write item outcome")
		return
	}
	if !settled {
		p.log(ctx).WithField(logger.FieldItemID, item.ID).Debug("Item outcome discarded, row already settled")
	}
}
