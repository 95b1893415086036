// Package dedupe suppresses identical error records recorded in quick
// succession, so an error storm cannot flood the buffer with copies of
// the same failure.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type Cache struct {
	seen *lru.Cache[string, time.Time]
}

func New(size int) (*Cache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &Cache{seen: c}, nil
}

// Seen reports whether key was observed within ttl of now, recording the
// observation either way. A ttl of zero disables suppression.
func (c *Cache) Seen(key string, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	if ts, ok := c.seen.Get(key); ok && now.Sub(ts) <= ttl {
		return true
	}
	c.seen.Add(key, now)
	return false
}

// Key hashes the identifying parts of an error record.
func Key(kind, message, stack string) string {
	h := sha256.Sum256([]byte(strings.Join([]string{kind, message, stack}, "|")))
	return hex.EncodeToString(h[:])
}
