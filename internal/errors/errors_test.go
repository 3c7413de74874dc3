package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestImageUnreadable_MatchesSentinel(t *testing.T) {
	err := NewImageUnreadableError("job-1", "/tmp/x.png")

	assert.True(t, stderrors.Is(err, ErrImageUnreadable))
	assert.True(t, stderrors.Is(fmt.Errorf("wrapped: %w", err), ErrImageUnreadable))
	assert.False(t, stderrors.Is(NewOCRFailedError("job-1", nil), ErrImageUnreadable))
	assert.Contains(t, err.Error(), "IMAGE_UNREADABLE")
	assert.Contains(t, err.Error(), "/tmp/x.png")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorWriteFailed, CodeOf(NewWriteFailedError("", "out.png", fmt.Errorf("disk full"))))
	assert.Equal(t, ErrorVariantFailed, CodeOf(fmt.Errorf("ctx: %w", NewVariantFailedError("", "binary", "cjk", nil))))
	assert.Equal(t, ErrorInternal, CodeOf(fmt.Errorf("plain")))
}

func TestNewInternalError(t *testing.T) {
	cause := fmt.Errorf("nil map")
	err := NewInternalError("job-2", cause)
	assert.True(t, stderrors.Is(err, cause))

	err = NewInternalError("job-2", 42)
	assert.Equal(t, "INTERNAL: unexpected failure (caused by: 42)", err.Error())
}

func TestToMap(t *testing.T) {
	err := NewProcessingTimeoutError("job-3", 2*time.Second, fmt.Errorf("deadline"))
	m := err.ToMap()

	assert.Equal(t, "PROCESSING_TIMEOUT", m["error_code"])
	assert.Equal(t, "2s", m["timeout_duration"])
	assert.Equal(t, "deadline", m["cause"])
}
