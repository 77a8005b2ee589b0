package offline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ActionType classifies a queued mutation.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// PendingAction is one mutation issued while disconnected, waiting for
// replay. Actions live only in the local durable store; they are removed on
// confirmed delivery or after exhausting the retry budget.
type PendingAction struct {
	ID         string                 `json:"id"`
	Type       ActionType             `json:"type"`
	Entity     string                 `json:"entity"`
	Payload    map[string]interface{} `json:"data"`
	Timestamp  time.Time              `json:"timestamp"`
	RetryCount int                    `json:"retry_count"`
}

// Store persists the ordered action queue. Load returns the whole queue;
// Save replaces it. Any durable key-value store fulfils this contract.
type Store interface {
	Load() ([]PendingAction, error)
	Save(actions []PendingAction) error
}

// FileStore keeps the queue as a JSON array in one well-known file. Writes go
// through a temp file plus rename so a crash mid-write never corrupts the
// queue.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed action store.
// Parameters:
//   - path: queue file location; parent directories are created on first save.
// Returns:
//   - *FileStore: initialized store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the queue from disk. A missing file is an empty queue.
// Parameters: none.
// Returns:
//   - []PendingAction: queued actions in insertion order.
//   - error: non-nil if the file exists but cannot be read or decoded.
func (s *FileStore) Load() ([]PendingAction, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []PendingAction{}, nil
		}
		return nil, fmt.Errorf("failed to read action queue: %w", err)
	}
	if len(data) == 0 {
		return []PendingAction{}, nil
	}

	var actions []PendingAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("failed to decode action queue: %w", err)
	}
	return actions, nil
}

// Save atomically replaces the queue file.
// Parameters:
//   - actions: full queue to persist.
// Returns:
//   - error: non-nil if encoding or the write fails.
func (s *FileStore) Save(actions []PendingAction) error {
	if actions == nil {
		actions = []PendingAction{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("failed to encode action queue: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write action queue: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace action queue: %w", err)
	}
	return nil
}
