package evaluate

import (
	"testing"
	"time"

	"pagepulse/config"
	"pagepulse/internal/window"
	"pagepulse/model"
)

func testDetection() config.DetectionConfig {
	cfg := config.DefaultConfig()
	return cfg.Detection
}

func newEvaluatorAt(t *testing.T, base time.Time) (*Evaluator, *time.Time) {
	t.Helper()
	now := new(time.Time)
	*now = base
	clock := func() time.Time { return *now }
	win := window.New(60 * time.Second)
	win.SetClock(clock)
	e := New(win, nil)
	e.now = clock
	return e, now
}

func TestHighErrorRateFiresExactlyOnceAtThreshold(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, _ := newEvaluatorAt(t, base)
	det := testDetection()

	fired := 0
	for i := 0; i < 12; i++ {
		e.ObserveEvent("checkout.step", base)
		alerts := e.Evaluate(det)
		for _, a := range alerts {
			if a.Kind == model.AlertHighErrorRate {
				fired++
				if i != 9 {
					t.Fatalf("high-error-rate fired on event %d, want the 10th", i+1)
				}
			}
		}
	}
	if fired != 1 {
		t.Fatalf("high-error-rate fired %d times, want exactly 1", fired)
	}
}

func TestCooldownExpiryAllowsRefire(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, now := newEvaluatorAt(t, base)
	det := testDetection()
	det.Window = 10 * time.Minute // keep entries in range across the cooldown
	win := window.New(det.Window)
	win.SetClock(func() time.Time { return *now })
	e.win = win

	for i := 0; i < 10; i++ {
		e.ObserveEvent("checkout.step", *now)
	}
	if alerts := e.Evaluate(det); len(alerts) != 1 {
		t.Fatalf("expected initial alert, got %d", len(alerts))
	}
	*now = now.Add(30 * time.Second)
	if alerts := e.Evaluate(det); len(alerts) != 0 {
		t.Fatalf("alert re-fired inside cooldown")
	}
	*now = now.Add(det.AlertCooldown)
	alerts := e.Evaluate(det)
	if len(alerts) != 1 || alerts[0].Kind != model.AlertHighErrorRate {
		t.Fatalf("expected re-fire after cooldown, got %v", alerts)
	}
}

func TestCriticalErrorThreshold(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, _ := newEvaluatorAt(t, base)
	det := testDetection()

	fired := 0
	for i := 0; i < 3; i++ {
		e.ObserveError(model.KindRuntimeError, model.SeverityCritical, base.Add(time.Duration(i)*time.Second))
		for _, a := range e.Evaluate(det) {
			if a.Kind == model.AlertCriticalErrors {
				fired++
			}
		}
	}
	if fired != 1 {
		t.Fatalf("critical-error-threshold fired %d times, want exactly 1", fired)
	}
}

func TestAPIFailurePattern(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, _ := newEvaluatorAt(t, base)
	det := testDetection()

	var got []model.Alert
	for i := 0; i < 5; i++ {
		e.ObserveError(model.KindNetworkRequest, model.SeverityWarning, base)
		got = append(got, e.Evaluate(det)...)
	}
	found := false
	for _, a := range got {
		if a.Kind == model.AlertAPIFailurePattern {
			found = true
			if a.Evidence["count"].(int) != 5 {
				t.Fatalf("evidence count = %v, want 5", a.Evidence["count"])
			}
		}
	}
	if !found {
		t.Fatal("expected api-failure-pattern alert after 5 network failures")
	}
}

func TestMemoryLeakRule(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, _ := newEvaluatorAt(t, base)
	det := testDetection()

	for _, v := range []float64{100, 110, 120, 130} {
		if alerts := e.ObserveMemory(v, det); len(alerts) != 0 {
			t.Fatalf("leak alert before %d samples collected", det.MemoryRunLength)
		}
	}
	alerts := e.ObserveMemory(140, det)
	if len(alerts) != 1 || alerts[0].Kind != model.AlertMemoryLeak {
		t.Fatalf("expected memory-leak-suspected, got %v", alerts)
	}

	// A dip resets the run.
	e2, _ := newEvaluatorAt(t, base)
	for _, v := range []float64{100, 110, 105, 120, 130} {
		if alerts := e2.ObserveMemory(v, det); len(alerts) != 0 {
			t.Fatalf("non-monotonic samples must not alert")
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, _ := newEvaluatorAt(t, base)
	e.ObserveError(model.KindRuntimeError, model.SeverityError, base)

	snap := e.Snapshot()
	snap.ErrorsByKind["runtime-error"] = 99
	if e.stats.ErrorsByKind["runtime-error"] != 1 {
		t.Fatal("snapshot mutation leaked into the evaluator")
	}
	if snap.ErrorsBySeverity["error"] != 1 {
		t.Fatalf("severity counter missing: %+v", snap.ErrorsBySeverity)
	}
}
