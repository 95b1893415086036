package evaluate

import "time"

// cooldown tracks the last emission per alert kind so a condition that
// stays above threshold does not alert on every evaluation. One alert per
// kind per cooldown period; the next evaluation after expiry may re-fire.
type cooldown struct {
	last map[string]time.Time
}

func newCooldown() *cooldown {
	return &cooldown{last: make(map[string]time.Time)}
}

func (c *cooldown) allow(key string, now time.Time, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	if ts, ok := c.last[key]; ok {
		if now.Sub(ts) < d {
			return false
		}
	}
	c.last[key] = now
	return true
}
