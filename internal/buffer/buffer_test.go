package buffer

import (
	"testing"

	"pagepulse/model"
)

func ev(name string) model.Event {
	return model.Event{ID: model.NewID(), Name: name}
}

func names(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Name)
	}
	return out
}

func equal(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestCapacityNeverExceeded(t *testing.T) {
	b := New(10)
	for i := 0; i < 100; i++ {
		b.Record(ev("e"))
		if b.Len() > 10 {
			t.Fatalf("buffer length %d exceeds capacity after %d records", b.Len(), i+1)
		}
	}
	if b.Dropped() != 90 {
		t.Fatalf("dropped = %d, want 90", b.Dropped())
	}
}

func TestDropOldestOrder(t *testing.T) {
	b := New(3)
	for _, name := range []string{"A", "B", "C", "D"} {
		b.Record(ev(name))
	}
	got := names(b.DrainAll())
	if !equal(got, []string{"B", "C", "D"}) {
		t.Fatalf("after overflow got %v, want [B C D]", got)
	}
	if b.Len() != 0 {
		t.Fatalf("drain left %d events behind", b.Len())
	}
}

func TestRequeuePrependsBeforeNewerEvents(t *testing.T) {
	b := New(10)
	b.Record(ev("A"))
	b.Record(ev("B"))
	batch := b.DrainAll()
	b.Record(ev("C"))
	b.Requeue(batch)
	got := names(b.DrainAll())
	if !equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("requeue order %v, want [A B C]", got)
	}
}

func TestRequeueOverflowEvictsOldestFirst(t *testing.T) {
	b := New(3)
	b.Record(ev("A"))
	b.Record(ev("B"))
	batch := b.DrainAll()
	b.Record(ev("C"))
	b.Record(ev("D"))
	b.Requeue(batch) // A, B, C, D against capacity 3
	got := names(b.DrainAll())
	if !equal(got, []string{"B", "C", "D"}) {
		t.Fatalf("requeue overflow kept %v, want [B C D]", got)
	}
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}
}

func TestRequeueEmptyIsNoop(t *testing.T) {
	b := New(3)
	b.Record(ev("A"))
	b.Requeue(nil)
	if b.Len() != 1 {
		t.Fatalf("len = %d after empty requeue", b.Len())
	}
}
