package services

import (
	"time"

	"go.uber.org/zap"

	"arcrtc/internal/core/domain"
)

// AdaptConfig holds the decision thresholds.
type AdaptConfig struct {
	LossStepDown  float64
	RTTStepDownMS float64
	LossStepUp    float64
	RTTStepUpMS   float64
	MinDwell      time.Duration
	// SustainedGood is how long conditions must stay good before stepping
	// up.
	SustainedGood time.Duration
	// EmergencyLoss bypasses the dwell time for an immediate downgrade.
	EmergencyLoss float64
	// HeadroomFactor is the bandwidth multiple of the current bitrate
	// required for a step up.
	HeadroomFactor float64

	Now func() time.Time
}

// DefaultAdaptConfig mirrors the engine defaults.
func DefaultAdaptConfig() AdaptConfig {
	return AdaptConfig{
		LossStepDown:   0.05,
		RTTStepDownMS:  100,
		LossStepUp:     0.01,
		RTTStepUpMS:    50,
		MinDwell:       2 * time.Second,
		SustainedGood:  5 * time.Second,
		EmergencyLoss:  0.20,
		HeadroomFactor: 1.5,
	}
}

// Decision is one quality change issued by the controller.
type Decision struct {
	StreamID domain.StreamID
	Level    domain.QualityLevel
	Profile  domain.QualityProfile
	Reason   string // bandwidth, network or keyframe
	Keyframe bool
}

// AdaptController maps health samples onto quality ladder moves for one
// stream: multiplicative-decrease on loss or latency, additive recovery
// under sustained good conditions. Decisions are surfaced through the
// OnDecision callback; the owner applies them to the encoder, the peer and
// the in-band quality bits.
type AdaptController struct {
	cfg      AdaptConfig
	streamID domain.StreamID
	level    domain.QualityLevel
	now      func() time.Time
	logger   *zap.SugaredLogger

	lastChange time.Time
	goodSince  time.Time

	// OnDecision fires on every committed change.
	OnDecision func(Decision)
}

// NewAdaptController creates a controller starting at the given level.
func NewAdaptController(cfg AdaptConfig, streamID domain.StreamID, initial domain.QualityLevel, logger *zap.SugaredLogger) *AdaptController {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AdaptController{
		cfg:      cfg,
		streamID: streamID,
		level:    initial,
		now:      now,
		logger:   logger,
	}
}

// Level returns the current quality level.
func (a *AdaptController) Level() domain.QualityLevel {
	return a.level
}

// Evaluate folds one health sample into the decision rule. currentBitrate
// is the stream's present target in bits/s. It returns true when the level
// changed this tick. Downgrades take precedence over upgrades.
func (a *AdaptController) Evaluate(sample domain.HealthSample, currentBitrate int) bool {
	now := a.now()

	degraded := sample.LossRate > a.cfg.LossStepDown || sample.RTTMS > a.cfg.RTTStepDownMS
	good := sample.LossRate < a.cfg.LossStepUp && sample.RTTMS < a.cfg.RTTStepUpMS &&
		sample.BandwidthBPS >= a.cfg.HeadroomFactor*float64(currentBitrate)

	if good {
		if a.goodSince.IsZero() {
			a.goodSince = now
		}
	} else {
		a.goodSince = time.Time{}
	}

	emergency := sample.LossRate > a.cfg.EmergencyLoss
	inDwell := !a.lastChange.IsZero() && now.Sub(a.lastChange) < a.cfg.MinDwell

	switch {
	case degraded:
		if inDwell && !emergency {
			return false
		}
		next := a.level.StepDown()
		if next == a.level {
			return false
		}
		return a.commit(next, "network", now)
	case good && !inDwell && now.Sub(a.goodSince) >= a.cfg.SustainedGood:
		next := a.level.StepUp()
		if next == a.level {
			return false
		}
		return a.commit(next, "bandwidth", now)
	}
	return false
}

// RequestKeyframe escalates a concealment failure into a keyframe request
// without moving the ladder.
func (a *AdaptController) RequestKeyframe() {
	if a.OnDecision == nil {
		return
	}
	a.OnDecision(Decision{
		StreamID: a.streamID,
		Level:    a.level,
		Profile:  a.level.Profile(),
		Reason:   "keyframe",
		Keyframe: true,
	})
}

func (a *AdaptController) commit(next domain.QualityLevel, reason string, now time.Time) bool {
	prev := a.level
	a.level = next
	a.lastChange = now
	a.goodSince = time.Time{}

	if a.logger != nil {
		a.logger.Infow("quality change",
			"stream_id", a.streamID,
			"from", prev.String(),
			"to", next.String(),
			"reason", reason,
		)
	}
	if a.OnDecision != nil {
		a.OnDecision(Decision{
			StreamID: a.streamID,
			Level:    next,
			Profile:  next.Profile(),
			Reason:   reason,
		})
	}
	return true
}
