package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the import job ID
	FieldJobID = "job_id"

	// FieldItemID is the import item ID
	FieldItemID = "item_id"

	// FieldActionID is the offline queue action ID
	FieldActionID = "action_id"

	// FieldOwnerID is the account that owns the request
	FieldOwnerID = "owner_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the batch source identifier
	FieldSource = "source"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
