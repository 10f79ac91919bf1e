// Package pacing provides the two request pacing primitives: a shared
// token-bucket rate limiter and a per-attempt random jitter sleeper.
package pacing

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates request attempts to a fixed number of starts per second.
// The bucket holds perSecond tokens and refills at perSecond tokens per
// second; each attempt consumes one. A nil Limiter never waits.
type Limiter struct {
	bucket *rate.Limiter
}

// NewLimiter returns a limiter for the given requests-per-second budget,
// or nil when perSecond is zero (limiting disabled).
func NewLimiter(perSecond int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.bucket.Wait(ctx)
}

// Jitter sleeps a uniformly random duration in [Min, Max] before each
// attempt. A nil Jitter sleeps nothing.
type Jitter struct {
	Min time.Duration
	Max time.Duration
}

// NewJitter returns a jitter sleeper for the inclusive range, or nil when
// the range is empty at zero (jitter disabled).
func NewJitter(min, max time.Duration) *Jitter {
	if max <= 0 {
		return nil
	}
	return &Jitter{Min: min, Max: max}
}

// Sleep pauses for a random duration in the configured range, returning
// early if ctx is cancelled.
func (j *Jitter) Sleep(ctx context.Context) {
	if j == nil {
		return
	}
	d := j.Min
	if span := j.Max - j.Min; span > 0 {
		d += time.Duration(rand.Int63n(int64(span) + 1))
	}
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
