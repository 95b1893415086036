// Package buffer implements the bounded, insertion-ordered event store.
// It is not synchronized: the recorder serializes all access, so every
// call runs to completion before the next begins.
package buffer

import "pagepulse/model"

type Buffer struct {
	items    []model.Event
	capacity int
	dropped  uint64
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Buffer{capacity: capacity}
}

// Record appends to the tail, evicting the head when full.
func (b *Buffer) Record(ev model.Event) {
	if len(b.items) < b.capacity {
		b.items = append(b.items, ev)
		return
	}
	copy(b.items, b.items[1:])
	b.items[len(b.items)-1] = ev
	b.dropped++
}

// DrainAll removes and returns every buffered event, oldest first.
func (b *Buffer) DrainAll() []model.Event {
	out := b.items
	b.items = nil
	return out
}

// Requeue prepends previously drained events back onto the head so they
// precede anything recorded since the drain. If the combined size exceeds
// capacity the oldest entries are evicted first, which may discard part of
// the requeued batch.
func (b *Buffer) Requeue(items []model.Event) {
	if len(items) == 0 {
		return
	}
	combined := make([]model.Event, 0, len(items)+len(b.items))
	combined = append(combined, items...)
	combined = append(combined, b.items...)
	if overflow := len(combined) - b.capacity; overflow > 0 {
		b.dropped += uint64(overflow)
		combined = combined[overflow:]
	}
	b.items = combined
}

func (b *Buffer) Len() int {
	return len(b.items)
}

// Dropped reports how many events capacity pressure has evicted. Counted
// but never alerting on its own.
func (b *Buffer) Dropped() uint64 {
	return b.dropped
}
