package worker

import (
	"context"
	"time"

	"dropflow/internal/domain"
	"github.com/go-resty/resty/v2"
)

// HTTPProcessor delegates item processing to an external HTTP endpoint. It
// POSTs the raw record and maps the response to an outcome; the endpoint owns
// the supplier-specific parsing and validation logic. Network faults and 5xx
// responses are transient; a 4xx response carries a classified error.
type HTTPProcessor struct {
	client   *resty.Client
	endpoint string
}

// HTTPProcessorConfig holds configuration for the HTTP processor.
type HTTPProcessorConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// NewHTTPProcessor creates an HTTP-backed item processor.
// Parameters:
//   - cfg: processor endpoint and timeout.
// Returns:
//   - *HTTPProcessor: initialized processor.
func NewHTTPProcessor(cfg *HTTPProcessorConfig) *HTTPProcessor {
	client := resty.New()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &HTTPProcessor{
		client:   client,
		endpoint: cfg.Endpoint,
	}
}

type processRequest struct {
	JobID   string         `json:"job_id"`
	ItemID  string         `json:"item_id"`
	RawData domain.JSONMap `json:"raw_data"`
}

type processResponse struct {
	ProductID string `json:"product_id,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ProcessItem submits one item to the processor endpoint.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: item to process.
// Returns:
//   - Outcome: classified result of this attempt.
func (p *HTTPProcessor) ProcessItem(ctx context.Context, item *domain.ImportItem) Outcome {
	var result processResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(processRequest{
			JobID:   item.JobID,
			ItemID:  item.ID,
			RawData: item.RawData,
		}).
		SetResult(&result).
		SetError(&result).
		Post(p.endpoint)

	if err != nil {
		return Outcome{Err: NewItemError(domain.ErrorCodeTransient, "processor request failed: %v", err)}
	}

	if resp.IsError() {
		if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
			return Outcome{Err: NewItemError(domain.ErrorCodeTransient, "processor returned %d", resp.StatusCode())}
		}
		code := mapErrorCode(result.ErrorCode)
		msg := result.Error
		if msg == "" {
			msg = resp.Status()
		}
		return Outcome{ProductID: result.ProductID, Err: &ItemError{Code: code, Message: msg}}
	}

	if result.ErrorCode != "" {
		return Outcome{ProductID: result.ProductID, Err: &ItemError{Code: mapErrorCode(result.ErrorCode), Message: result.Error}}
	}
	return Outcome{ProductID: result.ProductID}
}

// mapErrorCode normalizes endpoint-reported codes to the taxonomy, defaulting
// unknown values to system.
func mapErrorCode(code string) domain.ErrorCode {
	switch domain.ErrorCode(code) {
	case domain.ErrorCodeTransient, domain.ErrorCodeValidation,
		domain.ErrorCodeDuplicate, domain.ErrorCodeSystem:
		return domain.ErrorCode(code)
	default:
		return domain.ErrorCodeSystem
	}
}
