package core

import (
	"sync"
	"time"

	"github.com/dkeye/Tree/internal/domain"
)

// Cooldown tracks when each client was last let through. Clients never
// share a clock: one client's timing cannot block another.
type Cooldown struct {
	mu       sync.Mutex
	last     map[domain.ClientID]time.Time
	interval time.Duration
}

func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{
		last:     make(map[domain.ClientID]time.Time),
		interval: interval,
	}
}

// Allow reports whether id may pass at now and, if so, records now as its
// last admitted time. A rejected attempt leaves the table untouched.
func (c *Cooldown) Allow(id domain.ClientID, now time.Time) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if left := c.remaining(id, now); left > 0 {
		return false, left
	}
	c.last[id] = now
	return true, 0
}

// Remaining is how long id still has to wait at now.
func (c *Cooldown) Remaining(id domain.ClientID, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining(id, now)
}

func (c *Cooldown) remaining(id domain.ClientID, now time.Time) time.Duration {
	last, ok := c.last[id]
	if !ok {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed >= c.interval {
		return 0
	}
	return c.interval - elapsed
}

func (c *Cooldown) Forget(id domain.ClientID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, id)
}

func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
