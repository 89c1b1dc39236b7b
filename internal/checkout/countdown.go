package checkout

import (
	"fmt"
	"sync"
	"time"
)

// Countdown is the whole seconds left on a reservation. It never increases
// and never goes below zero.
type Countdown struct {
	mu        sync.Mutex
	remaining int
}

func secondsUntil(expiresAt, now time.Time) int {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

func NewCountdown(expiresAt, now time.Time) *Countdown {
	return &Countdown{remaining: secondsUntil(expiresAt, now)}
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Expired() bool {
	return c.Remaining() == 0
}

// Tick consumes one second and reports whether the countdown just reached or
// already was at zero.
func (c *Countdown) Tick() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining > 0 {
		c.remaining--
	}
	return c.remaining, c.remaining == 0
}

// Sync lowers the countdown to match an authoritative expiry; a later expiry
// is ignored.
func (c *Countdown) Sync(expiresAt, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := secondsUntil(expiresAt, now); s < c.remaining {
		c.remaining = s
	}
	return c.remaining
}

func (c *Countdown) Stop() {
	c.mu.Lock()
	c.remaining = 0
	c.mu.Unlock()
}

// Clock renders the remaining time as m:ss.
func Clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
