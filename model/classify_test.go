package model

import (
	"strings"
	"testing"
)

func TestClassifySeverity(t *testing.T) {
	cases := []struct {
		kind    ErrorKind
		message string
		want    Severity
	}{
		{KindOther, "network timeout on checkout", SeverityWarning},
		{KindOther, "fetch aborted", SeverityWarning},
		{KindOther, "permission denied by user", SeverityError},
		{KindOther, "security policy violation", SeverityError},
		{KindOther, "critical payment failure", SeverityCritical},
		{KindOther, "fatal exception in widget", SeverityCritical},
		{KindOther, "something odd happened", SeverityInfo},
		{KindRuntimeError, "", SeverityInfo},
		// First match wins: "network" outranks "fatal" by rule order.
		{KindOther, "fatal network error", SeverityWarning},
		// The kind participates in matching too.
		{KindNetworkRequest, "timed out", SeverityWarning},
	}
	for _, tc := range cases {
		if got := ClassifySeverity(tc.kind, tc.message); got != tc.want {
			t.Errorf("ClassifySeverity(%q, %q) = %q, want %q", tc.kind, tc.message, got, tc.want)
		}
	}
}

func TestTruncateStack(t *testing.T) {
	short := "at main\nat run"
	if got := TruncateStack(short, 100); got != short {
		t.Fatalf("short stack modified: %q", got)
	}
	long := strings.Repeat("at frame.function (file.go:42)\n", 500)
	got := TruncateStack(long, DefaultMaxStackLength)
	if len(got) > DefaultMaxStackLength {
		t.Fatalf("truncated stack is %d bytes, limit %d", len(got), DefaultMaxStackLength)
	}
	if !strings.HasPrefix(long, got) {
		t.Fatalf("truncation must preserve the head of the stack")
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
