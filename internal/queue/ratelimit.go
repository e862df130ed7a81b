package queue

import (
	"golang.org/x/time/rate"
)

// dualRateLimiter enforces both a per-second and a per-minute ceiling,
// admitting a dispatch only when both buckets have a token (§5.1).
type dualRateLimiter struct {
	perSecond *rate.Limiter
	perMinute *rate.Limiter
}

func newDualRateLimiter(perSecond, perMinute float64) *dualRateLimiter {
	l := &dualRateLimiter{}
	if perSecond > 0 {
		l.perSecond = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
	if perMinute > 0 {
		l.perMinute = rate.NewLimiter(rate.Limit(perMinute/60.0), max(1, int(perMinute)))
	}
	return l
}

// allow reports whether a dispatch may proceed right now without
// blocking. Both buckets must have a token; a refused per-minute check
// still costs the per-second token already taken, which only makes the
// per-second ceiling slightly more conservative, never less.
func (l *dualRateLimiter) allow() bool {
	if l.perSecond != nil && !l.perSecond.Allow() {
		return false
	}
	if l.perMinute != nil && !l.perMinute.Allow() {
		return false
	}
	return true
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
