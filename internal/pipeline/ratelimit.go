package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when no token became available within maxWait.
var ErrRateLimited = errors.New("rate limited")

// RateLimiter is a token bucket guarding the enrich and completion stages.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	maxWait  time.Duration
	lastTime time.Time
}

func NewRateLimiter(maxBurst int, ratePerMinute float64, maxWait time.Duration) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 10
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &RateLimiter{
		tokens:   float64(maxBurst),
		max:      float64(maxBurst),
		rate:     ratePerMinute / 60.0,
		maxWait:  maxWait,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available, ctx is done, or maxWait elapses.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	var deadline time.Time
	if rl.maxWait > 0 {
		deadline = time.Now().Add(rl.maxWait)
	}
	for {
		rl.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(rl.lastTime).Seconds()
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.max {
			rl.tokens = rl.max
		}
		rl.lastTime = now

		if rl.tokens >= 1.0 {
			rl.tokens -= 1.0
			rl.mu.Unlock()
			return nil
		}

		wait := time.Duration((1.0 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		if !deadline.IsZero() && now.Add(wait).After(deadline) {
			return ErrRateLimited
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
