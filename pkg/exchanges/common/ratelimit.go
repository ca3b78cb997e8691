package common

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing requests and tracks the request weight an
// exchange reports back in a response header.
type RateLimiter struct {
	name    string
	limiter *rate.Limiter

	mu            sync.RWMutex
	usedWeight    int
	weightLimit   int
	lastReset     time.Time
	resetInterval time.Duration
}

// NewRateLimiter allows perSecond requests with the given burst. weightLimit
// is the exchange's weight budget per resetInterval (0 disables tracking).
func NewRateLimiter(name string, perSecond float64, burst, weightLimit int, resetInterval time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		name:          name,
		limiter:       rate.NewLimiter(rate.Limit(perSecond), burst),
		weightLimit:   weightLimit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
	}
}

// Wait blocks until a request may be sent. Near the weight budget it also
// waits out the remainder of the current window.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.ShouldDelay() {
		rl.mu.RLock()
		remaining := rl.resetInterval - time.Since(rl.lastReset)
		rl.mu.RUnlock()
		if remaining > 0 {
			t := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return rl.limiter.Wait(ctx)
}

// UpdateFromHeader records the used weight reported by the exchange.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" || rl.weightLimit <= 0 {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if time.Since(rl.lastReset) >= rl.resetInterval {
		rl.lastReset = time.Now()
	}
	rl.usedWeight = weight

	pct := float64(rl.usedWeight) / float64(rl.weightLimit) * 100
	if pct >= 95 {
		log.Printf("%s: rate limit critical %d/%d (%.1f%%)", rl.name, rl.usedWeight, rl.weightLimit, pct)
	} else if pct >= 80 {
		log.Printf("%s: rate limit warning %d/%d (%.1f%%)", rl.name, rl.usedWeight, rl.weightLimit, pct)
	}
}

// Usage returns the used weight in the current window.
func (rl *RateLimiter) Usage() (used int, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if rl.weightLimit <= 0 || time.Since(rl.lastReset) >= rl.resetInterval {
		return 0, rl.weightLimit, 0
	}
	return rl.usedWeight, rl.weightLimit, float64(rl.usedWeight) / float64(rl.weightLimit) * 100
}

// ShouldDelay returns true once 90% of the weight budget is spent.
func (rl *RateLimiter) ShouldDelay() bool {
	_, _, pct := rl.Usage()
	return pct >= 90
}
