package dedupe

import (
	"testing"
	"time"
)

func TestSeenWithinTTL(t *testing.T) {
	c, err := New(16)
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := Key("runtime-error", "boom", "at main")

	if c.Seen(key, base, time.Second) {
		t.Fatal("first observation reported as seen")
	}
	if !c.Seen(key, base.Add(500*time.Millisecond), time.Second) {
		t.Fatal("duplicate within ttl not suppressed")
	}
	if c.Seen(key, base.Add(3*time.Second), time.Second) {
		t.Fatal("observation after ttl expiry suppressed")
	}
}

func TestZeroTTLDisables(t *testing.T) {
	c, _ := New(16)
	base := time.Now()
	key := Key("runtime-error", "boom", "")
	if c.Seen(key, base, 0) || c.Seen(key, base, 0) {
		t.Fatal("zero ttl must never suppress")
	}
}

func TestDistinctKeys(t *testing.T) {
	if Key("a", "b", "c") == Key("a", "b", "d") {
		t.Fatal("distinct records hashed to the same key")
	}
}
