package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCodeReplayDetected, "packet replayed")
	assert.Equal(t, "REPLAY_DETECTED: packet replayed", err.Error())

	cause := stderrors.New("tag mismatch")
	wrapped := Wrap(cause, ErrCodeAuthFailed, "open failed")
	assert.Contains(t, wrapped.Error(), "AUTH_FAILED")
	assert.Contains(t, wrapped.Error(), "tag mismatch")
	assert.ErrorIs(t, wrapped, cause)
}

func TestCodeOf(t *testing.T) {
	err := New(ErrCodeTimeout, "deadline")
	assert.Equal(t, ErrCodeTimeout, CodeOf(err))
	assert.True(t, IsCode(err, ErrCodeTimeout))
	assert.False(t, IsCode(err, ErrCodeParse))

	assert.Equal(t, ErrorCode(""), CodeOf(stderrors.New("plain")))
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeUnknownStream, "no such stream").WithContext("stream_id", "s-1")
	assert.Equal(t, "s-1", err.Context["stream_id"])
}
