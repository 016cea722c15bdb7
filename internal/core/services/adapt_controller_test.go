package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"arcrtc/internal/core/domain"
)

func newTestController(t *testing.T, clock *fakeClock, initial domain.QualityLevel) (*AdaptController, *[]Decision) {
	cfg := DefaultAdaptConfig()
	cfg.Now = clock.Now
	c := NewAdaptController(cfg, "stream-1", initial, zaptest.NewLogger(t).Sugar())
	decisions := &[]Decision{}
	c.OnDecision = func(d Decision) {
		*decisions = append(*decisions, d)
	}
	return c, decisions
}

func sample(loss, rttMS, bandwidthBPS float64) domain.HealthSample {
	return domain.HealthSample{LossRate: loss, RTTMS: rttMS, BandwidthBPS: bandwidthBPS}
}

func TestStepDownOnLoss(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c, decisions := newTestController(t, clock, domain.QualityHigh)

	changed := c.Evaluate(sample(0.08, 40, 2_000_000), 2_500_000)
	require.True(t, changed)
	assert.Equal(t, domain.QualityMedium, c.Level())
	require.Len(t, *decisions, 1)
	assert.Equal(t, "network", (*decisions)[0].Reason)
}

func TestDwellSuppressesRepeatedChanges(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c, decisions := newTestController(t, clock, domain.QualityHigh)

	require.True(t, c.Evaluate(sample(0.08, 40, 0), 2_500_000))

	// Three more degraded ticks inside the dwell: held at Medium.
	for i := 0; i < 3; i++ {
		clock.Advance(500 * time.Millisecond)
		assert.False(t, c.Evaluate(sample(0.08, 40, 0), 1_200_000))
	}
	assert.Equal(t, domain.QualityMedium, c.Level())
	assert.Len(t, *decisions, 1)

	clock.Advance(time.Second)
	assert.True(t, c.Evaluate(sample(0.08, 40, 0), 1_200_000))
	assert.Equal(t, domain.QualityLow, c.Level())
}

func TestEmergencyDowngradeBypassesDwell(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c, _ := newTestController(t, clock, domain.QualityHigh)

	require.True(t, c.Evaluate(sample(0.08, 40, 0), 2_500_000))
	clock.Advance(100 * time.Millisecond)
	assert.True(t, c.Evaluate(sample(0.25, 40, 0), 1_200_000), "loss above 0.20 ignores dwell")
	assert.Equal(t, domain.QualityLow, c.Level())
}

func TestStepUpNeedsSustainedGoodAndHeadroom(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c, decisions := newTestController(t, clock, domain.QualityMedium)

	good := sample(0.005, 30, 3_000_000)
	assert.False(t, c.Evaluate(good, 1_200_000), "good conditions start the clock")

	clock.Advance(5 * time.Second)
	require.True(t, c.Evaluate(good, 1_200_000))
	assert.Equal(t, domain.QualityHigh, c.Level())
	assert.Equal(t, "bandwidth", (*decisions)[0].Reason)
}

func TestStepUpBlockedWithoutHeadroom(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c, _ := newTestController(t, clock, domain.QualityMedium)

	// Loss and RTT are fine but bandwidth headroom is below 1.5x.
	tight := sample(0.005, 30, 1_500_000)
	assert.False(t, c.Evaluate(tight, 1_200_000))
	clock.Advance(6 * time.Second)
	assert.False(t, c.Evaluate(tight, 1_200_000))
	assert.Equal(t, domain.QualityMedium, c.Level())
}

func TestGoodStreakResetsOnDegradedTick(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c, _ := newTestController(t, clock, domain.QualityMedium)

	good := sample(0.005, 30, 3_000_000)
	assert.False(t, c.Evaluate(good, 1_200_000))
	clock.Advance(4 * time.Second)
	// Not degraded enough to step down, but bad enough to reset the streak.
	assert.False(t, c.Evaluate(sample(0.03, 60, 3_000_000), 1_200_000))
	clock.Advance(2 * time.Second)
	assert.False(t, c.Evaluate(good, 1_200_000), "streak restarted, not yet sustained")
}

func TestLadderStopsAtEnds(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c, _ := newTestController(t, clock, domain.QualityVeryLow)

	assert.False(t, c.Evaluate(sample(0.5, 500, 0), 200_000), "already at the floor")
	assert.Equal(t, domain.QualityVeryLow, c.Level())

	c2, _ := newTestController(t, clock, domain.QualityUltra)
	good := sample(0.001, 10, 100_000_000)
	c2.Evaluate(good, 4_000_000)
	clock.Advance(6 * time.Second)
	assert.False(t, c2.Evaluate(good, 4_000_000), "already at the ceiling")
}

func TestRequestKeyframe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c, decisions := newTestController(t, clock, domain.QualityHigh)

	c.RequestKeyframe()
	require.Len(t, *decisions, 1)
	d := (*decisions)[0]
	assert.True(t, d.Keyframe)
	assert.Equal(t, "keyframe", d.Reason)
	assert.Equal(t, domain.QualityHigh, c.Level(), "keyframe requests do not move the ladder")
}
