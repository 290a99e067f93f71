// Package ratelimit enforces the minimum spacing between listing
// searches. The cooldown is process-wide, across all users: a shared
// courtesy throttle toward the upstream listing sites.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultCooldown is how long searches must be spaced apart.
const DefaultCooldown = 8 * time.Second

// Cooldown owns the last-search timestamp and the spacing interval.
// TryAcquire is atomic with respect to concurrent callers: overlapping
// searches see each other's stamp.
type Cooldown struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time // injectable clock for tests
}

// NewCooldown creates a limiter with the given interval. A
// non-positive interval falls back to the default.
func NewCooldown(interval time.Duration) *Cooldown {
	if interval <= 0 {
		interval = DefaultCooldown
	}
	return &Cooldown{interval: interval, now: time.Now}
}

// TryAcquire attempts to claim a search slot. On success the timestamp
// is stamped immediately, before the caller does any external work.
// On denial it reports how long the caller must still wait.
func (c *Cooldown) TryAcquire() (ok bool, wait time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.last.IsZero() {
		if elapsed := now.Sub(c.last); elapsed < c.interval {
			return false, c.interval - elapsed
		}
	}
	c.last = now
	return true, 0
}

// Interval returns the configured cooldown interval.
func (c *Cooldown) Interval() time.Duration {
	return c.interval
}
