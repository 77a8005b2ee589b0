package offline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFileStoreMissingFileIsEmptyQueue verifies first-run behavior.
func TestFileStoreMissingFileIsEmptyQueue(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope", "queue.json"))
	actions, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, actions)
}

// TestFileStoreRoundTrip verifies save/load including parent dir creation.
func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queue.json")
	s := NewFileStore(path)

	in := []PendingAction{
		{
			ID:        "a-1",
			Type:      ActionCreate,
			Entity:    "products",
			Payload:   map[string]interface{}{"title": "Desk lamp"},
			Timestamp: time.Now().UTC().Truncate(time.Second),
		},
		{
			ID:         "a-2",
			Type:       ActionDelete,
			Entity:     "products",
			Payload:    map[string]interface{}{"id": "p-1"},
			RetryCount: 2,
		},
	}
	require.NoError(t, s.Save(in))

	out, err := s.Load()
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a-1", out[0].ID)
	assert.Equal(t, ActionCreate, out[0].Type)
	assert.Equal(t, "Desk lamp", out[0].Payload["title"])
	assert.Equal(t, 2, out[1].RetryCount)

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

// TestFileStoreCorruptFileErrors verifies that undecodable state surfaces as
// an error instead of silently resetting the queue.
func TestFileStoreCorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := NewFileStore(path)
	_, err := s.Load()
	assert.Error(t, err)
}
