package schema

import "fmt"

// Error codes for structured error reporting.
//
// Build-time codes (fatal at startup, never surfaced to request handlers):
// ErrCodeMalformedWorkflow, ErrCodeDuplicateOutputKey, ErrCodeDuplicateStage,
// ErrCodeUnknownStage. Everything else is a per-request or stage-level code
// captured into the WorkflowReport.
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeUnknownStage        = "UNKNOWN_STAGE"
	ErrCodeDuplicateStage      = "DUPLICATE_STAGE"
	ErrCodeMalformedWorkflow   = "MALFORMED_WORKFLOW"
	ErrCodeDuplicateOutputKey  = "DUPLICATE_OUTPUT_KEY"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamRejected    = "UPSTREAM_REJECTED"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeIncompleteWorkflow  = "INCOMPLETE_WORKFLOW"
	ErrCodeExecution           = "EXECUTION_ERROR"
	ErrCodeInterpolation       = "INTERPOLATION_ERROR"
	ErrCodeStore               = "STORE_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
)

// Error is the structured error type for all stageline operations.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] stage %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStage attaches a stage name to the error.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// IsRetryable reports whether a provider client may retry the failed call.
// Rejections and input errors are final; transient transport failures and
// timeouts are worth another attempt.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrCodeUpstreamUnavailable, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// FailureKind reports the caller-facing failure classification for a stage
// failure. Infrastructure codes collapse into UPSTREAM_UNAVAILABLE so the
// report taxonomy stays closed.
func (e *Error) FailureKind() string {
	switch e.Code {
	case ErrCodeInvalidInput, ErrCodeUpstreamUnavailable, ErrCodeUpstreamRejected, ErrCodeTimeout:
		return e.Code
	default:
		return ErrCodeUpstreamUnavailable
	}
}
