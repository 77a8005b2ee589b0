package worker

import (
	"context"
	"fmt"

	"dropflow/internal/domain"
)

// ItemError is a classified item processing failure carrying a code from the
// error taxonomy. Transient errors are retry-eligible; validation, duplicate,
// and system errors are permanent for the attempt.
type ItemError struct {
	Code    domain.ErrorCode
	Message string
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewItemError creates a classified item error.
// Parameters:
//   - code: taxonomy code.
//   - format: printf-style message format.
//   - args: message arguments.
// Returns:
//   - *ItemError: classified error.
func NewItemError(code domain.ErrorCode, format string, args ...interface{}) *ItemError {
	return &ItemError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Outcome is the result of exactly one processing attempt for one item.
// A nil Err means success; ProductID carries the created product when one
// exists. A duplicate error is reported as a soft success: the item settles
// as success (with the existing product ID when known) but no new product is
// created.
type Outcome struct {
	ProductID string
	Err       *ItemError
}

// Processor consumes pending/retrying items and produces exactly one outcome
// per attempt. The pipeline makes no assumption about the implementation
// (HTTP call, file parse, etc.) beyond this contract; the concrete
// scraping/validation logic lives outside this module.
type Processor interface {
	ProcessItem(ctx context.Context, item *domain.ImportItem) Outcome
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, item *domain.ImportItem) Outcome

// ProcessItem calls the wrapped function.
func (f ProcessorFunc) ProcessItem(ctx context.Context, item *domain.ImportItem) Outcome {
	return f(ctx, item)
}
