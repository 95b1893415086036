// Package window maintains the trailing rate window used for threshold
// decisions. Pruning is lazy: it runs on every Observe and every Count,
// never on its own timer.
package window

import (
	"time"

	"pagepulse/model"
)

type Window struct {
	length  time.Duration
	entries []model.RateWindowEntry
	head    int
	now     func() time.Time
}

func New(length time.Duration) *Window {
	if length <= 0 {
		length = 60 * time.Second
	}
	return &Window{
		length:  length,
		entries: make([]model.RateWindowEntry, 0, 128),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Tests drive pruning with a fixed
// clock; production code leaves this alone.
func (w *Window) SetClock(now func() time.Time) {
	if now != nil {
		w.now = now
	}
}

func (w *Window) Observe(entry model.RateWindowEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = w.now()
	}
	w.prune()
	w.entries = append(w.entries, entry)
}

// Count returns the number of retained entries matching pred; a nil pred
// counts everything. An entry at time T is still counted at T+length and
// excluded strictly after.
func (w *Window) Count(pred func(model.RateWindowEntry) bool) int {
	w.prune()
	if pred == nil {
		return len(w.entries) - w.head
	}
	n := 0
	for i := w.head; i < len(w.entries); i++ {
		if pred(w.entries[i]) {
			n++
		}
	}
	return n
}

func (w *Window) Len() int {
	w.prune()
	return len(w.entries) - w.head
}

func (w *Window) prune() {
	cutoff := w.now().Add(-w.length)
	for w.head < len(w.entries) {
		if !w.entries[w.head].Timestamp.Before(cutoff) {
			break
		}
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.entries) {
		w.entries = append([]model.RateWindowEntry{}, w.entries[w.head:]...)
		w.head = 0
	}
}
