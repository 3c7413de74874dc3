package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error types shared by the deskew and OCR pipelines
 *
 * Every failure that crosses a package boundary is a ProcessingError so the CLIs
 * and the queue worker can report a stable code alongside the message.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorImageUnreadable ErrorCode = "IMAGE_UNREADABLE"

	// Recognition errors
	ErrorOCRFailed     ErrorCode = "OCR_FAILED"
	ErrorVariantFailed ErrorCode = "VARIANT_FAILED"

	// Output errors
	ErrorWriteFailed ErrorCode = "WRITE_FAILED"

	// Runtime errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorInternal          ErrorCode = "INTERNAL"
)

// ErrImageUnreadable is matched with errors.Is for any IMAGE_UNREADABLE error.
var ErrImageUnreadable = stderrors.New("image could not be read")

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrImageUnreadable) match without a wrapped cause.
func (e *ProcessingError) Is(target error) bool {
	return target == ErrImageUnreadable && e.Code == ErrorImageUnreadable
}

// Factory functions for common errors

func NewImageUnreadableError(jobID string, path string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorImageUnreadable,
		Message:   fmt.Sprintf("could not read image: %s", path),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

func NewOCRFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   "OCR failed",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewVariantFailedError(jobID string, variant string, profile string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorVariantFailed,
		Message:   fmt.Sprintf("recognition failed on variant %s", variant),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"variant": variant,
			"profile": profile,
		},
		Cause: cause,
	}
}

func NewWriteFailedError(jobID string, path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorWriteFailed,
		Message:   fmt.Sprintf("could not write image: %s", path),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

// NewInternalError converts a recovered panic value into an error.
func NewInternalError(jobID string, recovered interface{}) *ProcessingError {
	var cause error
	switch v := recovered.(type) {
	case error:
		cause = v
	default:
		cause = fmt.Errorf("%v", v)
	}
	return &ProcessingError{
		Code:      ErrorInternal,
		Message:   "unexpected failure",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// CodeOf returns the code of the first ProcessingError in err's chain, or
// ErrorInternal when there is none.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ErrorInternal
}

// ToMap converts error to map for event payloads
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
