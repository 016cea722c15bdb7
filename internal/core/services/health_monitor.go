package services

import (
	"math"
	"time"

	"arcrtc/internal/core/domain"
)

// HealthThresholds triggers the subscription callback when a metric
// crosses one of the bounds. Zero values disable the bound.
type HealthThresholds struct {
	MaxLossRate float64
	MaxJitterMS float64
	MaxRTTMS    float64
}

// HealthConfig tunes metric windows and the bandwidth estimator.
type HealthConfig struct {
	// ClockRate converts RTP timestamp units to wall time.
	ClockRate uint32
	// LossWindow bounds the loss rate computation (default 5s).
	LossWindow time.Duration
	// RingSize bounds the retained sample history.
	RingSize int

	Thresholds  HealthThresholds
	OnThreshold func(domain.HealthSample)

	// Bandwidth estimator bounds and AIMD constants.
	InitialBandwidthBPS float64
	MinBandwidthBPS     float64
	MaxBandwidthBPS     float64
	AdditiveIncreaseBPS float64
	DecreaseFactor      float64

	Now func() time.Time
}

// DefaultHealthConfig mirrors the engine defaults.
func DefaultHealthConfig(clockRate uint32) HealthConfig {
	return HealthConfig{
		ClockRate:           clockRate,
		LossWindow:          5 * time.Second,
		RingSize:            64,
		InitialBandwidthBPS: 1_000_000,
		MinBandwidthBPS:     64_000,
		MaxBandwidthBPS:     10_000_000,
		AdditiveIncreaseBPS: 50_000,
		DecreaseFactor:      0.85,
	}
}

type lossCheckpoint struct {
	at       time.Time
	expected uint64
	received uint64
}

// HealthMonitor keeps rolling loss, jitter, RTT and bandwidth estimates for
// one stream. It is owned by the stream's single-writer pipeline task, so
// no locking is needed.
type HealthMonitor struct {
	cfg HealthConfig
	now func() time.Time

	// sequence accounting
	baseSeq    uint64
	highestSeq uint64
	received   uint64
	started    bool

	// RFC 3550 §6.4.1 interarrival jitter, in timestamp units
	jitter      float64
	lastArrival time.Time
	lastRTPTime uint32
	hasArrival  bool

	rttMS  float64
	hasRTT bool

	checkpoints []lossCheckpoint

	// hybrid bandwidth estimate
	lossEstimate  float64
	delayEstimate float64
	delayTrend    float64

	samples []domain.HealthSample
}

// NewHealthMonitor creates a monitor for one stream.
func NewHealthMonitor(cfg HealthConfig) *HealthMonitor {
	if cfg.LossWindow <= 0 {
		cfg.LossWindow = 5 * time.Second
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = 64
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &HealthMonitor{
		cfg:           cfg,
		now:           now,
		lossEstimate:  cfg.InitialBandwidthBPS,
		delayEstimate: cfg.InitialBandwidthBPS,
	}
}

// ObserveArrival records one delivered packet: sequence accounting for the
// loss rate, and the interarrival jitter update.
func (h *HealthMonitor) ObserveArrival(extSeq uint64, rtpTimestamp uint32) {
	now := h.now()

	if !h.started {
		h.baseSeq = extSeq
		h.highestSeq = extSeq
		h.started = true
	} else if extSeq > h.highestSeq {
		h.highestSeq = extSeq
	}
	h.received++

	if h.hasArrival && h.cfg.ClockRate > 0 {
		arrivalDelta := now.Sub(h.lastArrival).Seconds() * float64(h.cfg.ClockRate)
		tsDelta := float64(int32(rtpTimestamp - h.lastRTPTime))
		d := arrivalDelta - tsDelta
		h.jitter += (math.Abs(d) - h.jitter) / 16

		// Delay-based bandwidth signal: a persistent positive trend in the
		// arrival deltas means queues are building.
		h.delayTrend = 0.9*h.delayTrend + 0.1*d
	}
	h.lastArrival = now
	h.lastRTPTime = rtpTimestamp
	h.hasArrival = true
}

// ObserveRTT records a round-trip measurement from a heartbeat ack or an
// RTCP report, smoothed with an EWMA.
func (h *HealthMonitor) ObserveRTT(rttMS float64) {
	if rttMS < 0 {
		return
	}
	if !h.hasRTT {
		h.rttMS = rttMS
		h.hasRTT = true
		return
	}
	h.rttMS = 0.875*h.rttMS + 0.125*rttMS
}

// LossRate computes the fraction of expected packets missing over the
// configured window.
func (h *HealthMonitor) LossRate() float64 {
	if !h.started {
		return 0
	}
	expected := h.highestSeq - h.baseSeq + 1
	received := h.received

	// Window against the oldest retained checkpoint.
	if len(h.checkpoints) > 0 {
		oldest := h.checkpoints[0]
		expected -= oldest.expected
		received -= oldest.received
	}
	if expected == 0 {
		return 0
	}
	loss := float64(expected-min64(received, expected)) / float64(expected)
	return math.Min(math.Max(loss, 0), 1)
}

// JitterMS returns the current interarrival jitter estimate.
func (h *HealthMonitor) JitterMS() float64 {
	if h.cfg.ClockRate == 0 {
		return 0
	}
	return h.jitter / float64(h.cfg.ClockRate) * 1000
}

// RTTMS returns the smoothed round-trip time.
func (h *HealthMonitor) RTTMS() float64 {
	return h.rttMS
}

// BandwidthBPS returns the hybrid estimate: the smaller of the loss-based
// AIMD estimate and the delay-based one.
func (h *HealthMonitor) BandwidthBPS() float64 {
	return math.Min(h.lossEstimate, h.delayEstimate)
}

// Sample computes the current metrics, advances the loss window, updates
// the bandwidth estimate, appends to the ring and fires the threshold
// callback when a bound is crossed.
func (h *HealthMonitor) Sample() domain.HealthSample {
	now := h.now()
	loss := h.LossRate()

	// AIMD loss-based estimate.
	switch {
	case loss > 0.05:
		h.lossEstimate *= h.cfg.DecreaseFactor
	case loss <= 0.01:
		h.lossEstimate += h.cfg.AdditiveIncreaseBPS
	}
	h.lossEstimate = clampF(h.lossEstimate, h.cfg.MinBandwidthBPS, h.cfg.MaxBandwidthBPS)

	// Delay-based estimate: back off while the trend is positive, recover
	// slowly otherwise.
	if h.delayTrend > 1 {
		h.delayEstimate *= 0.95
	} else {
		h.delayEstimate += h.cfg.AdditiveIncreaseBPS / 2
	}
	h.delayEstimate = clampF(h.delayEstimate, h.cfg.MinBandwidthBPS, h.cfg.MaxBandwidthBPS)

	sample := domain.HealthSample{
		LossRate:     loss,
		JitterMS:     h.JitterMS(),
		RTTMS:        h.rttMS,
		BandwidthBPS: h.BandwidthBPS(),
		Timestamp:    now,
	}

	h.samples = append(h.samples, sample)
	if len(h.samples) > h.cfg.RingSize {
		h.samples = h.samples[1:]
	}

	h.checkpoint(now)

	if h.crossesThreshold(sample) && h.cfg.OnThreshold != nil {
		h.cfg.OnThreshold(sample)
	}
	return sample
}

// Samples returns the retained history, oldest first.
func (h *HealthMonitor) Samples() []domain.HealthSample {
	out := make([]domain.HealthSample, len(h.samples))
	copy(out, h.samples)
	return out
}

func (h *HealthMonitor) checkpoint(now time.Time) {
	if !h.started {
		return
	}
	h.checkpoints = append(h.checkpoints, lossCheckpoint{
		at:       now,
		expected: h.highestSeq - h.baseSeq + 1,
		received: h.received,
	})
	cutoff := now.Add(-h.cfg.LossWindow)
	for len(h.checkpoints) > 1 && h.checkpoints[0].at.Before(cutoff) {
		h.checkpoints = h.checkpoints[1:]
	}
}

func (h *HealthMonitor) crossesThreshold(s domain.HealthSample) bool {
	t := h.cfg.Thresholds
	if t.MaxLossRate > 0 && s.LossRate > t.MaxLossRate {
		return true
	}
	if t.MaxJitterMS > 0 && s.JitterMS > t.MaxJitterMS {
		return true
	}
	if t.MaxRTTMS > 0 && s.RTTMS > t.MaxRTTMS {
		return true
	}
	return false
}

// RTTFromReport derives a round-trip time in milliseconds from RTCP
// receiver report LSR/DLSR fields (RFC 3550 §6.4.1), both in 1/65536
// second units.
func RTTFromReport(lastSenderReport, delay uint32, now time.Time) float64 {
	ntp := toNTP32(now)
	rtt := int64(ntp) - int64(lastSenderReport) - int64(delay)
	if rtt < 0 {
		return 0
	}
	return float64(rtt) / 65536 * 1000
}

// toNTP32 renders the middle 32 bits of the NTP timestamp for now.
func toNTP32(t time.Time) uint32 {
	const ntpEpochOffset = 2208988800 // seconds between 1900 and 1970
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) * (1 << 32) / 1_000_000_000
	return uint32(secs<<16) | uint32(frac>>16)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
