package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the lifecycle status of an import job.
// Values include JobStatusCreated, JobStatusRunning, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusCreated   JobStatus = "created"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JSONMap is a custom type for storing arbitrary JSON objects in the database.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the map.
//   - error: non-nil if marshaling fails.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// JobStats holds per-status item counts for a job.
// Total always equals Pending+Success+Failed+Retrying; it is derived from the
// same grouped count over the item rows, never stored arithmetic.
type JobStats struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Success  int64 `json:"success"`
	Failed   int64 `json:"failed"`
	Retrying int64 `json:"retrying"`
}

// ImportJob represents one batch-ingestion request and its aggregate lifecycle.
// A job reaches completed once no item is pending or retrying, regardless of
// per-item failures; failed is reserved for orchestration-level faults.
type ImportJob struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	OwnerID     string     `gorm:"type:text;not null;index:idx_import_jobs_owner" json:"owner_id"`
	Source      string     `gorm:"type:text;not null" json:"source"`
	Status      JobStatus  `gorm:"type:text;index:idx_import_jobs_status;default:created" json:"status"`
	TotalItems  int64      `gorm:"default:0" json:"total_items"`
	Metadata    JSONMap    `gorm:"type:text" json:"metadata,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ImportJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ImportJob) TableName() string {
	return "import_jobs"
}

// IsTerminal reports whether the job status allows no further automatic transition.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
