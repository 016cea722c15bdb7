package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcrtc/internal/core/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestMonitor(clock *fakeClock) *HealthMonitor {
	cfg := DefaultHealthConfig(48000)
	cfg.Now = clock.Now
	return NewHealthMonitor(cfg)
}

func TestLossRateCleanStream(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := newTestMonitor(clock)

	for seq := uint64(1000); seq < 1100; seq++ {
		h.ObserveArrival(seq, uint32(seq)*960)
		clock.Advance(20 * time.Millisecond)
	}
	sample := h.Sample()
	assert.Equal(t, 0.0, sample.LossRate)
	assert.InDelta(t, 0, sample.JitterMS, 0.5, "steady pacing keeps jitter near zero")
}

func TestLossRateWithHoles(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := newTestMonitor(clock)

	for seq := uint64(0); seq < 100; seq++ {
		if seq%10 == 5 {
			continue // drop every tenth packet
		}
		h.ObserveArrival(seq, uint32(seq)*960)
		clock.Advance(20 * time.Millisecond)
	}
	assert.InDelta(t, 0.1, h.LossRate(), 0.011)
}

func TestJitterTracksVariablePacing(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := newTestMonitor(clock)

	// Timestamps advance 20ms per packet, arrivals alternate 10ms/30ms.
	for seq := uint64(0); seq < 200; seq++ {
		h.ObserveArrival(seq, uint32(seq)*960)
		if seq%2 == 0 {
			clock.Advance(10 * time.Millisecond)
		} else {
			clock.Advance(30 * time.Millisecond)
		}
	}
	assert.Greater(t, h.JitterMS(), 5.0)
}

func TestRTTSmoothing(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := newTestMonitor(clock)

	h.ObserveRTT(100)
	assert.Equal(t, 100.0, h.RTTMS())
	h.ObserveRTT(50)
	assert.InDelta(t, 93.75, h.RTTMS(), 0.01)
	h.ObserveRTT(-1)
	assert.InDelta(t, 93.75, h.RTTMS(), 0.01, "negative samples are ignored")
}

func TestBandwidthAIMD(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := newTestMonitor(clock)
	initial := h.BandwidthBPS()

	// Clean arrivals: additive increase.
	for seq := uint64(0); seq < 50; seq++ {
		h.ObserveArrival(seq, uint32(seq)*960)
		clock.Advance(20 * time.Millisecond)
	}
	h.Sample()
	grown := h.BandwidthBPS()
	assert.Greater(t, grown, initial)

	// Heavy loss: multiplicative decrease.
	for seq := uint64(100); seq < 200; seq += 2 {
		h.ObserveArrival(seq, uint32(seq)*960)
		clock.Advance(20 * time.Millisecond)
	}
	h.Sample()
	assert.Less(t, h.BandwidthBPS(), grown)
}

func TestThresholdCallback(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cfg := DefaultHealthConfig(48000)
	cfg.Now = clock.Now
	cfg.Thresholds = HealthThresholds{MaxLossRate: 0.05}
	var fired []domain.HealthSample
	cfg.OnThreshold = func(s domain.HealthSample) {
		fired = append(fired, s)
	}
	h := NewHealthMonitor(cfg)

	// One of every two packets lost.
	for seq := uint64(0); seq < 40; seq += 2 {
		h.ObserveArrival(seq, uint32(seq)*960)
		clock.Advance(20 * time.Millisecond)
	}
	h.Sample()
	require.NotEmpty(t, fired)
	assert.Greater(t, fired[0].LossRate, 0.05)
}

func TestSampleRingBounded(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cfg := DefaultHealthConfig(48000)
	cfg.Now = clock.Now
	cfg.RingSize = 4
	h := NewHealthMonitor(cfg)

	for i := 0; i < 10; i++ {
		h.Sample()
		clock.Advance(time.Second)
	}
	assert.Len(t, h.Samples(), 4)
}

func TestRTTFromReport(t *testing.T) {
	now := time.Unix(2000, 0)
	// The peer reports our SR timestamp from 150ms ago and 50ms of
	// holding delay: RTT should come out near 100ms.
	lsr := toNTP32(now.Add(-150 * time.Millisecond))
	delay := uint32(50 * 65536 / 1000)
	rtt := RTTFromReport(lsr, delay, now)
	assert.InDelta(t, 100, rtt, 1)

	assert.Equal(t, 0.0, RTTFromReport(toNTP32(now.Add(time.Second)), 0, now), "future LSR clamps to zero")
}
