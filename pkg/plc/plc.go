// Package plc synthesizes substitute frames when the jitter buffer reports
// a gap. Audio concealment repeats the last frame with a linear fade-out;
// video concealment freezes the last frame and tracks keyframe debt.
package plc

import "encoding/binary"

// AudioConfig controls audio concealment.
type AudioConfig struct {
	Enabled bool
	// FadeOutFrames is the number of consecutive gaps concealed by fading
	// the last frame before falling back to silence.
	FadeOutFrames int
}

// DefaultAudioConfig mirrors the engine defaults.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{Enabled: true, FadeOutFrames: 3}
}

// Audio conceals audio gaps. Payloads are treated as 16-bit little-endian
// PCM for amplitude shaping; other encodings degrade to frame repetition.
type Audio struct {
	cfg         AudioConfig
	lastFrame   []byte
	consecutive int
	degraded    bool
	cache       map[uint64][]byte
}

// NewAudio creates an audio concealer.
func NewAudio(cfg AudioConfig) *Audio {
	return &Audio{cfg: cfg, cache: make(map[uint64][]byte)}
}

// Observe records a real frame, ending any concealment run.
func (a *Audio) Observe(payload []byte) {
	a.lastFrame = append(a.lastFrame[:0], payload...)
	a.consecutive = 0
	a.degraded = false
	if len(a.cache) > 0 {
		a.cache = make(map[uint64][]byte)
	}
}

// Conceal synthesizes a frame for the given extended sequence. Repeated
// calls for the same sequence return the same payload within a run.
func (a *Audio) Conceal(seq uint64) []byte {
	if !a.cfg.Enabled {
		return nil
	}
	if cached, ok := a.cache[seq]; ok {
		return cached
	}

	a.consecutive++
	var out []byte
	if a.consecutive > a.cfg.FadeOutFrames || len(a.lastFrame) == 0 {
		a.degraded = true
		out = make([]byte, len(a.lastFrame))
	} else {
		factor := 1.0 - float64(a.consecutive)/float64(a.cfg.FadeOutFrames+1)
		out = fade(a.lastFrame, factor)
	}
	a.cache[seq] = out
	return out
}

// Degraded reports whether the stream exceeded the fade-out budget and is
// emitting silence.
func (a *Audio) Degraded() bool {
	return a.degraded
}

// Reset clears concealment state.
func (a *Audio) Reset() {
	a.lastFrame = nil
	a.consecutive = 0
	a.degraded = false
	a.cache = make(map[uint64][]byte)
}

// fade scales 16-bit samples by factor. A trailing odd byte is copied.
func fade(frame []byte, factor float64) []byte {
	out := make([]byte, len(frame))
	n := len(frame) / 2 * 2
	for i := 0; i < n; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(frame[i:]))
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(float64(sample)*factor)))
	}
	if n < len(frame) {
		out[n] = frame[n]
	}
	return out
}

// VideoConfig controls video concealment.
type VideoConfig struct {
	Enabled bool
	// MaxConcealPackets bounds how many consecutive losses may be concealed
	// before a keyframe is demanded.
	MaxConcealPackets int
	// Interpolation enables frame-freeze output; when disabled Conceal
	// returns nil and only keyframe tracking is performed.
	Interpolation bool
}

// DefaultVideoConfig mirrors the engine defaults.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{Enabled: true, MaxConcealPackets: 5, Interpolation: true}
}

// Video conceals video gaps by holding the last decoded frame.
type Video struct {
	cfg           VideoConfig
	lastFrame     []byte
	consecutive   int
	needsKeyframe bool
	cache         map[uint64][]byte
}

// NewVideo creates a video concealer.
func NewVideo(cfg VideoConfig) *Video {
	return &Video{cfg: cfg, cache: make(map[uint64][]byte)}
}

// Observe records a real frame. A keyframe clears any outstanding keyframe
// demand and resets the concealment run.
func (v *Video) Observe(payload []byte, keyframe bool) {
	v.lastFrame = append(v.lastFrame[:0], payload...)
	v.consecutive = 0
	if keyframe {
		v.needsKeyframe = false
	}
	if len(v.cache) > 0 {
		v.cache = make(map[uint64][]byte)
	}
}

// Conceal returns a frame-freeze payload for the given extended sequence.
// Losses beyond MaxConcealPackets break the P-frame chain and set the
// keyframe demand.
func (v *Video) Conceal(seq uint64) []byte {
	if !v.cfg.Enabled {
		return nil
	}
	if cached, ok := v.cache[seq]; ok {
		return cached
	}

	v.consecutive++
	if v.consecutive > v.cfg.MaxConcealPackets {
		v.needsKeyframe = true
	}

	var out []byte
	if v.cfg.Interpolation && len(v.lastFrame) > 0 {
		out = append([]byte(nil), v.lastFrame...)
	}
	v.cache[seq] = out
	return out
}

// NeedsKeyframe reports whether concealment broke the P-frame chain.
func (v *Video) NeedsKeyframe() bool {
	return v.needsKeyframe
}

// Reset clears concealment state.
func (v *Video) Reset() {
	v.lastFrame = nil
	v.consecutive = 0
	v.needsKeyframe = false
	v.cache = make(map[uint64][]byte)
}
