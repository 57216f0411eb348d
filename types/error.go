package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

const (
	// ErrValidation indicates empty input or mismatched sequence
	// lengths. No lock is taken and no checkpoint is created.
	ErrValidation ErrorCode = "VALIDATION"
	// ErrLockTimeout indicates the run lock could not be acquired
	// within the configured timeout.
	ErrLockTimeout ErrorCode = "LOCK_TIMEOUT"
	// ErrBatchExecution indicates a batch failed after exhausting its
	// retry attempts. Partial results remain on disk.
	ErrBatchExecution ErrorCode = "BATCH_EXECUTION"
	// ErrCorruptedCheckpoint indicates persisted state could not be
	// deserialized.
	ErrCorruptedCheckpoint ErrorCode = "CORRUPTED_CHECKPOINT"
	// ErrStore indicates a checkpoint storage failure.
	ErrStore ErrorCode = "STORE"
	// ErrNotFound indicates the requested run has no persisted state.
	ErrNotFound ErrorCode = "NOT_FOUND"
)

// Error is a structured error carrying enough context to diagnose and
// safely resume a run: code, run id, batch range and attempt count.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	RunID      string    `json:"run_id,omitempty"`
	BatchStart int       `json:"batch_start,omitempty"`
	BatchEnd   int       `json:"batch_end,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.RunID != "" {
		msg += fmt.Sprintf(" (run %s)", e.RunID)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause attaches the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRun attaches the run identifier.
func (e *Error) WithRun(runID string) *Error {
	e.RunID = runID
	return e
}

// WithBatch attaches the 1-based item range of the failing batch.
func (e *Error) WithBatch(start, end int) *Error {
	e.BatchStart = start
	e.BatchEnd = end
	return e
}

// WithAttempts records how many attempts were made.
func (e *Error) WithAttempts(attempts int) *Error {
	e.Attempts = attempts
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// GetErrorCode extracts the error code from an error, or "" if the
// error is not a *Error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
