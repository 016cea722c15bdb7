package plc

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmFrame(sample int16, n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

func sampleAt(frame []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(frame[i*2:]))
}

func TestAudioFadeOutThenSilence(t *testing.T) {
	a := NewAudio(DefaultAudioConfig())
	a.Observe(pcmFrame(1000, 160))

	// Fade factors for 3 fade frames: 0.75, 0.50, 0.25.
	first := a.Conceal(100)
	require.Len(t, first, 320)
	assert.Equal(t, int16(750), sampleAt(first, 0))

	second := a.Conceal(101)
	assert.Equal(t, int16(500), sampleAt(second, 0))

	third := a.Conceal(102)
	assert.Equal(t, int16(250), sampleAt(third, 0))
	assert.False(t, a.Degraded())

	fourth := a.Conceal(103)
	assert.Equal(t, int16(0), sampleAt(fourth, 0))
	assert.True(t, a.Degraded(), "silence after the fade budget marks the stream degraded")
}

func TestAudioConcealIdempotent(t *testing.T) {
	a := NewAudio(DefaultAudioConfig())
	a.Observe(pcmFrame(2000, 10))

	first := a.Conceal(7)
	again := a.Conceal(7)
	assert.Equal(t, first, again)

	// A different sequence continues the run rather than repeating.
	next := a.Conceal(8)
	assert.NotEqual(t, first, next)
}

func TestAudioObserveResetsRun(t *testing.T) {
	a := NewAudio(DefaultAudioConfig())
	a.Observe(pcmFrame(1000, 4))

	a.Conceal(1)
	a.Conceal(2)
	a.Observe(pcmFrame(800, 4))

	// The run restarts at the first fade step from the new frame.
	out := a.Conceal(3)
	assert.Equal(t, int16(600), sampleAt(out, 0))
	assert.False(t, a.Degraded())
}

func TestAudioDisabled(t *testing.T) {
	a := NewAudio(AudioConfig{Enabled: false})
	a.Observe(pcmFrame(1000, 4))
	assert.Nil(t, a.Conceal(1))
}

func TestVideoFrameFreeze(t *testing.T) {
	v := NewVideo(DefaultVideoConfig())
	frame := []byte{0x01, 0x02, 0x03}
	v.Observe(frame, true)

	out := v.Conceal(50)
	assert.Equal(t, frame, out)
	assert.False(t, v.NeedsKeyframe())

	// Idempotent per sequence.
	assert.Equal(t, out, v.Conceal(50))
}

func TestVideoKeyframeDemandAfterBudget(t *testing.T) {
	v := NewVideo(DefaultVideoConfig())
	v.Observe([]byte{0xFF}, true)

	for seq := uint64(1); seq <= 5; seq++ {
		v.Conceal(seq)
		assert.False(t, v.NeedsKeyframe(), "within budget at %d", seq)
	}
	v.Conceal(6)
	assert.True(t, v.NeedsKeyframe(), "P-frame chain broken past the budget")

	// A delta frame does not clear the demand; a keyframe does.
	v.Observe([]byte{0xEE}, false)
	assert.True(t, v.NeedsKeyframe())
	v.Observe([]byte{0xDD}, true)
	assert.False(t, v.NeedsKeyframe())
}

func TestVideoInterpolationDisabled(t *testing.T) {
	v := NewVideo(VideoConfig{Enabled: true, MaxConcealPackets: 1, Interpolation: false})
	v.Observe([]byte{0x01}, true)

	assert.Nil(t, v.Conceal(1))
	v.Conceal(2)
	assert.True(t, v.NeedsKeyframe())
}
