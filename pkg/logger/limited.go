package logger

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limited wraps a SugaredLogger with a token bucket so per-packet error
// paths cannot flood the log. Suppressed entries are counted and the count
// is attached to the next entry that passes.
type Limited struct {
	logger     *zap.SugaredLogger
	limiter    *rate.Limiter
	suppressed int64
}

// NewLimited creates a rate-limited logger allowing perSecond entries with
// the given burst.
func NewLimited(logger *zap.SugaredLogger, perSecond float64, burst int) *Limited {
	return &Limited{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Warnw logs at warn level if the limiter allows it.
func (l *Limited) Warnw(msg string, keysAndValues ...interface{}) {
	if !l.limiter.Allow() {
		l.suppressed++
		return
	}
	if l.suppressed > 0 {
		keysAndValues = append(keysAndValues, "suppressed", l.suppressed)
		l.suppressed = 0
	}
	l.logger.Warnw(msg, keysAndValues...)
}

// Errorw logs at error level if the limiter allows it.
func (l *Limited) Errorw(msg string, keysAndValues ...interface{}) {
	if !l.limiter.Allow() {
		l.suppressed++
		return
	}
	if l.suppressed > 0 {
		keysAndValues = append(keysAndValues, "suppressed", l.suppressed)
		l.suppressed = 0
	}
	l.logger.Errorw(msg, keysAndValues...)
}
