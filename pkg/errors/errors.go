package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeFetch represents network, timeout and non-2xx errors
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeRateLimit represents an origin refusing requests for a while
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeRender represents failures of the rendered-DOM engine
	ErrorTypeRender ErrorType = "render"
	// ErrorTypeExtraction represents markup that could not be turned into products
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeDelivery represents notification channel failures
	ErrorTypeDelivery ErrorType = "delivery"
	// ErrorTypeLedger represents posted-ledger store failures
	ErrorTypeLedger ErrorType = "ledger"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// PipelineError is an error raised by one stage of the deal pipeline
type PipelineError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *PipelineError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeFetch, ErrorTypeRender, ErrorTypeDelivery:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error must abort the whole run
func (e *PipelineError) IsFatal() bool {
	return e.Type == ErrorTypeLedger || e.Type == ErrorTypeConfiguration
}

// New creates a new PipelineError
func New(errType ErrorType, source, message string, err error) *PipelineError {
	return &PipelineError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewFetch creates a new fetch error
func NewFetch(source, message string, err error) *PipelineError {
	return New(ErrorTypeFetch, source, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(source string, duration time.Duration) *PipelineError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, source, message, nil)
}

// NewRender creates a new render error
func NewRender(source, message string, err error) *PipelineError {
	return New(ErrorTypeRender, source, message, err)
}

// NewExtraction creates a new extraction error
func NewExtraction(source, message string, err error) *PipelineError {
	return New(ErrorTypeExtraction, source, message, err)
}

// NewDelivery creates a new delivery error
func NewDelivery(source, message string, err error) *PipelineError {
	return New(ErrorTypeDelivery, source, message, err)
}

// NewLedger creates a new ledger error
func NewLedger(message string, err error) *PipelineError {
	return New(ErrorTypeLedger, "", message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *PipelineError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the ErrorType of the first PipelineError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Type
	}
	return ""
}

// IsRetryable reports whether err carries a PipelineError worth retrying on a later run.
func IsRetryable(err error) bool {
	var pe *PipelineError
	return stderrors.As(err, &pe) && pe.IsRetryable()
}

// IsFatal reports whether err carries a PipelineError that must abort the run.
func IsFatal(err error) bool {
	var pe *PipelineError
	return stderrors.As(err, &pe) && pe.IsFatal()
}
