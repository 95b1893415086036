// Package evaluate inspects the rate window against the configured
// thresholds and emits alerts when they are crossed. It runs synchronously
// inside the record path, after the window has been updated.
package evaluate

import (
	"log/slog"
	"strings"
	"time"

	"pagepulse/config"
	"pagepulse/internal/window"
	"pagepulse/model"
)

// Stats is the owned aggregate of pipeline counters. Readers get copies;
// there is no ambient state.
type Stats struct {
	Events           int
	ErrorsByKind     map[string]int
	ErrorsBySeverity map[string]int
	AlertsByKind     map[string]int
}

type Evaluator struct {
	win      *window.Window
	cooldown *cooldown
	logger   *slog.Logger
	now      func() time.Time

	memSamples []float64
	stats      Stats
}

func New(win *window.Window, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		win:      win,
		cooldown: newCooldown(),
		logger:   logger,
		now:      time.Now,
		stats: Stats{
			ErrorsByKind:     make(map[string]int),
			ErrorsBySeverity: make(map[string]int),
			AlertsByKind:     make(map[string]int),
		},
	}
}

// ObserveEvent feeds a plain event into the rate window. The kind carried
// into the window is the event name.
func (e *Evaluator) ObserveEvent(name string, ts time.Time) {
	e.stats.Events++
	e.win.Observe(model.RateWindowEntry{Timestamp: ts, Kind: name})
}

// ObserveError feeds an error record into the rate window and counters.
func (e *Evaluator) ObserveError(kind model.ErrorKind, severity model.Severity, ts time.Time) {
	e.stats.ErrorsByKind[string(kind)]++
	e.stats.ErrorsBySeverity[string(severity)]++
	e.win.Observe(model.RateWindowEntry{Timestamp: ts, Severity: severity, Kind: string(kind)})
}

// ObserveMemory records a memory sample for the leak rule, keeping the last
// N values. Returns an alert when all retained samples strictly increase.
func (e *Evaluator) ObserveMemory(value float64, det config.DetectionConfig) []model.Alert {
	n := det.MemoryRunLength
	if n <= 0 {
		n = 5
	}
	e.memSamples = append(e.memSamples, value)
	if len(e.memSamples) > n {
		e.memSamples = e.memSamples[len(e.memSamples)-n:]
	}
	if len(e.memSamples) < n || !monotonic(e.memSamples) {
		return nil
	}
	now := e.now()
	if !e.cooldown.allow(string(model.AlertMemoryLeak), now, det.AlertCooldown) {
		return nil
	}
	alert := e.emit(model.AlertMemoryLeak, now, map[string]any{
		"samples":   append([]float64(nil), e.memSamples...),
		"runLength": n,
	})
	return []model.Alert{alert}
}

// Evaluate checks every rate threshold and returns at most one alert per
// kind per call.
func (e *Evaluator) Evaluate(det config.DetectionConfig) []model.Alert {
	now := e.now()
	var out []model.Alert

	total := e.win.Count(nil)
	if total >= det.HighErrorRate && e.cooldown.allow(string(model.AlertHighErrorRate), now, det.AlertCooldown) {
		out = append(out, e.emit(model.AlertHighErrorRate, now, map[string]any{
			"count":     total,
			"threshold": det.HighErrorRate,
			"windowSec": int(det.Window.Seconds()),
		}))
	}

	critical := e.win.Count(func(entry model.RateWindowEntry) bool {
		return entry.Severity == model.SeverityCritical
	})
	if critical >= det.CriticalErrors && e.cooldown.allow(string(model.AlertCriticalErrors), now, det.AlertCooldown) {
		out = append(out, e.emit(model.AlertCriticalErrors, now, map[string]any{
			"count":     critical,
			"threshold": det.CriticalErrors,
			"windowSec": int(det.Window.Seconds()),
		}))
	}

	api := e.win.Count(func(entry model.RateWindowEntry) bool {
		return strings.Contains(entry.Kind, "api") || strings.Contains(entry.Kind, "network")
	})
	if api >= det.APIFailures && e.cooldown.allow(string(model.AlertAPIFailurePattern), now, det.AlertCooldown) {
		out = append(out, e.emit(model.AlertAPIFailurePattern, now, map[string]any{
			"count":     api,
			"threshold": det.APIFailures,
			"windowSec": int(det.Window.Seconds()),
		}))
	}
	return out
}

func (e *Evaluator) emit(kind model.AlertKind, now time.Time, evidence map[string]any) model.Alert {
	e.stats.AlertsByKind[string(kind)]++
	if e.logger != nil {
		e.logger.Warn("alert threshold crossed", "kind", string(kind), "evidence", evidence)
	}
	return model.Alert{
		ID:        model.NewID(),
		Kind:      kind,
		Evidence:  evidence,
		Timestamp: now,
	}
}

// WindowOccupancy reports how many entries the rate window currently holds.
func (e *Evaluator) WindowOccupancy() int {
	return e.win.Len()
}

// Snapshot copies the stats aggregate for diagnostics readers.
func (e *Evaluator) Snapshot() Stats {
	out := Stats{
		Events:           e.stats.Events,
		ErrorsByKind:     make(map[string]int, len(e.stats.ErrorsByKind)),
		ErrorsBySeverity: make(map[string]int, len(e.stats.ErrorsBySeverity)),
		AlertsByKind:     make(map[string]int, len(e.stats.AlertsByKind)),
	}
	for k, v := range e.stats.ErrorsByKind {
		out.ErrorsByKind[k] = v
	}
	for k, v := range e.stats.ErrorsBySeverity {
		out.ErrorsBySeverity[k] = v
	}
	for k, v := range e.stats.AlertsByKind {
		out.AlertsByKind[k] = v
	}
	return out
}

func monotonic(samples []float64) bool {
	for i := 1; i < len(samples); i++ {
		if samples[i] <= samples[i-1] {
			return false
		}
	}
	return true
}
