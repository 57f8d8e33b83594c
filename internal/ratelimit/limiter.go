// Package ratelimit throttles calls to the descriptor resolution service
// using a token bucket. The upstream conversion service is quota-limited, so
// repeated resolves are spread out rather than rejected.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/mixtape/mixtape/internal/logging"
)

const (
	warnAfter    = 2 * time.Second
	warnInterval = 10 * time.Second
)

// RateLimiter is a token bucket. Wait reserves a token up front, so the
// balance goes negative while callers are queued and each one sleeps for
// its own slot. A nil *RateLimiter never blocks.
type RateLimiter struct {
	mu       sync.Mutex
	balance  float64
	capacity float64
	perSec   float64
	last     time.Time
	warned   time.Time
	now      func() time.Time
	logger   *logging.Logger
}

// NewRateLimiter creates a full bucket holding burst tokens and refilling at
// tokensPerSecond.
func NewRateLimiter(tokensPerSecond, burst float64) *RateLimiter {
	rl := &RateLimiter{
		balance:  burst,
		capacity: burst,
		perSec:   tokensPerSecond,
		now:      time.Now,
		logger:   logging.Nop(),
	}
	rl.last = rl.now()
	return rl
}

// NewPerMinute creates a limiter allowing perMinute calls per minute with
// the given burst. Non-positive values disable limiting (nil limiter).
func NewPerMinute(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return NewRateLimiter(float64(perMinute)/60, float64(burst))
}

// SetLogger sets where long waits are reported.
func (rl *RateLimiter) SetLogger(logger *logging.Logger) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	rl.logger = logging.OrNop(logger)
	rl.mu.Unlock()
}

// Wait takes one token, sleeping until it is due. If ctx ends first the
// token is handed back and ctx's error returned.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	delay := rl.reserve()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		rl.mu.Lock()
		rl.balance++
		rl.mu.Unlock()
		return ctx.Err()
	}
}

// TryAcquire takes a token only if one is available now.
func (rl *RateLimiter) TryAcquire() bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	if rl.balance < 1 {
		return false
	}
	rl.balance--
	return true
}

// Available returns the tokens that could be taken right now. It is negative
// while waiters are queued.
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	return rl.balance
}

func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()
	rl.balance--
	if rl.balance >= 0 {
		return 0
	}

	delay := time.Duration(-rl.balance / rl.perSec * float64(time.Second))
	if now := rl.now(); delay > warnAfter && now.Sub(rl.warned) > warnInterval {
		rl.logger.Warn().Dur("wait", delay).Msg("Rate limited: waiting for resolver capacity")
		rl.warned = now
	}
	return delay
}

func (rl *RateLimiter) refillLocked() {
	now := rl.now()
	rl.balance += now.Sub(rl.last).Seconds() * rl.perSec
	if rl.balance > rl.capacity {
		rl.balance = rl.capacity
	}
	rl.last = now
}
