package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to StreamState
		want     bool
	}{
		{StreamInitializing, StreamActive, true},
		{StreamInitializing, StreamStopped, true},
		{StreamInitializing, StreamPaused, false},
		{StreamActive, StreamPaused, true},
		{StreamPaused, StreamActive, true},
		{StreamActive, StreamStopped, true},
		{StreamPaused, StreamStopped, true},
		{StreamStopped, StreamActive, false},
		{StreamStopped, StreamStopped, false},
		{StreamActive, StreamError, true},
		{StreamStopped, StreamError, true},
		{StreamError, StreamError, false},
		{StreamError, StreamActive, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "initializing", StreamInitializing.String())
	assert.Equal(t, "error", StreamError.String())
	assert.Equal(t, "established", SessionEstablished.String())
	assert.Equal(t, "video", KindVideo.String())
	assert.Equal(t, "audio", KindAudio.String())
}
