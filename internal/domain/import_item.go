package domain

import "time"

// ItemStatus represents the processing status of a single import item.
// Values include ItemStatusPending, ItemStatusRetrying, ItemStatusSuccess, and ItemStatusFailed.
type ItemStatus string

const (
	ItemStatusPending  ItemStatus = "pending"
	ItemStatusRetrying ItemStatus = "retrying"
	ItemStatusSuccess  ItemStatus = "success"
	ItemStatusFailed   ItemStatus = "failed"
)

// ErrorCode classifies item processing failures.
// Transient failures are retry-eligible; the rest are permanent for a given attempt.
type ErrorCode string

const (
	// ErrorCodeTransient covers network errors, timeouts, and rate limits.
	ErrorCodeTransient ErrorCode = "transient"
	// ErrorCodeValidation covers malformed records and missing required fields.
	ErrorCodeValidation ErrorCode = "validation"
	// ErrorCodeDuplicate means the record already exists; treated as a soft
	// success for reporting, no new product is created.
	ErrorCodeDuplicate ErrorCode = "duplicate"
	// ErrorCodeSystem covers unexpected internal faults.
	ErrorCodeSystem ErrorCode = "system"
)

// ImportItem represents one line of a batch, tracked independently through
// success/failure/retry. Items are owned exclusively by their job, created in
// bulk at job start, and mutated only by the item processor (outcomes) or the
// retry path (failed -> retrying). They are never deleted individually; job
// deletion cascades.
type ImportItem struct {
	ID           string     `gorm:"type:text;primaryKey" json:"id"`
	JobID        string     `gorm:"type:text;not null;index:idx_import_items_job" json:"job_id"`
	LineNumber   int        `gorm:"not null" json:"line_number"`
	Status       ItemStatus `gorm:"type:text;index:idx_import_items_status;default:pending" json:"status"`
	ProductID    *string    `gorm:"type:text" json:"product_id,omitempty"`
	ErrorCode    ErrorCode  `gorm:"type:text" json:"error_code,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int        `gorm:"default:0" json:"retry_count"`
	RawData      JSONMap    `gorm:"type:text" json:"raw_data"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ImportItem.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ImportItem) TableName() string {
	return "import_items"
}

// IsProcessable reports whether the item is waiting for a processing attempt.
// Retrying items are processed identically to pending ones; the distinct status
// only exists to tell first attempts from re-attempts in reporting.
func (i *ImportItem) IsProcessable() bool {
	return i.Status == ItemStatusPending || i.Status == ItemStatusRetrying
}
