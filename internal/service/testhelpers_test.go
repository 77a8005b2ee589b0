package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dropflow/internal/domain"
	"dropflow/internal/logger"
	"dropflow/internal/repository"
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

// countingNotifier records terminal-transition notifications for assertions.
type countingNotifier struct {
	mu            sync.Mutex
	jobsCompleted []string
	flushes       int
}

func (n *countingNotifier) JobCompleted(_ context.Context, job *domain.ImportJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobsCompleted = append(n.jobsCompleted, job.ID)
}

func (n *countingNotifier) QueueFlushed(_ context.Context, _, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.flushes++
}

func (n *countingNotifier) completedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.jobsCompleted)
}
