// Package pagepulse is the in-process telemetry pipeline: producers hand
// it events, errors and metric samples; it buffers them under capacity
// limits, evaluates alert thresholds over a trailing window, and delivers
// batches to a remote collector. Recording can never fail the host: every
// public method contains its own panics.
package pagepulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"pagepulse/config"
	"pagepulse/internal/buffer"
	"pagepulse/internal/dedupe"
	"pagepulse/internal/evaluate"
	"pagepulse/internal/logging"
	"pagepulse/internal/spool"
	"pagepulse/internal/transport"
	"pagepulse/internal/window"
	"pagepulse/model"
)

type FlushReason string

const (
	FlushPeriodic  FlushReason = "periodic"
	FlushUnload    FlushReason = "unload"
	FlushImmediate FlushReason = "immediate"
)

type FlushOutcome struct {
	Time      time.Time   `json:"time"`
	Reason    FlushReason `json:"reason"`
	Delivered int         `json:"delivered"`
	Requeued  int         `json:"requeued"`
	Err       string      `json:"err,omitempty"`
}

// Summary is a read-only diagnostics snapshot.
type Summary struct {
	SessionID        string
	Environment      string
	BufferedEvents   int
	BufferedErrors   int
	BufferedMetrics  int
	DroppedEvents    uint64
	WindowOccupancy  int
	Events           int
	ErrorsByKind     map[string]int
	ErrorsBySeverity map[string]int
	AlertsByKind     map[string]int
	LastFlush        FlushOutcome
}

type Recorder struct {
	cfg       atomic.Value // *config.Config
	logger    *slog.Logger
	transport transport.Transport
	spool     spool.Store

	mu        sync.Mutex
	events    *buffer.Buffer
	errs      *buffer.Buffer
	metrics   *buffer.Buffer
	eval      *evaluate.Evaluator
	dupes     *dedupe.Cache
	closed    bool
	lastFlush FlushOutcome

	// sendMu serializes deliveries so batches reach the collector in the
	// order their events were recorded.
	sendMu sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

type Option func(*Recorder)

// WithTransport replaces the config-built transport, for hosts with their
// own delivery path and for tests.
func WithTransport(t transport.Transport) Option {
	return func(r *Recorder) { r.transport = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

func New(cfg *config.Config, opts ...Option) (*Recorder, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	config.ApplyDefaults(cfg)
	r := &Recorder{
		stop: make(chan struct{}),
		now:  time.Now,
	}
	r.cfg.Store(cfg)
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewLogger(cfg.LogLevel)
	}
	if r.transport == nil {
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
		t, err := transport.New(cfg.Transport, cfg.Flush.BestEffortTimeout, r.logger)
		if err != nil {
			return nil, err
		}
		r.transport = t
	}
	r.events = buffer.New(cfg.Buffers.EventCapacity)
	r.errs = buffer.New(cfg.Buffers.ErrorCapacity)
	r.metrics = buffer.New(cfg.Buffers.MetricCapacity)
	r.eval = evaluate.New(window.New(cfg.Detection.Window), r.logger)
	dupes, err := dedupe.New(cfg.Detection.DedupeCacheSize)
	if err != nil {
		return nil, err
	}
	r.dupes = dupes

	sp, err := spool.NewStore(cfg.Spool)
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}
	if sp != nil {
		r.spool = sp
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sp.Init(ctx); err != nil {
			return nil, fmt.Errorf("init spool: %w", err)
		}
		r.recoverSpooled(ctx)
	}

	r.wg.Add(1)
	go r.flushLoop(cfg.Flush.Interval)
	if cfg.Flush.MemorySample > 0 {
		r.wg.Add(1)
		go r.memoryLoop(cfg.Flush.MemorySample)
	}
	return r, nil
}

// RecordEvent stores a structured event. The Immediate option triggers a
// flush right after storing, for business-critical steps.
func (r *Recorder) RecordEvent(name string, properties map[string]any, opts ...RecordOption) {
	defer r.contain("recordEvent")
	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}
	cfg := r.config()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !cfg.Enabled.Analytics {
		return
	}
	now := r.now().UTC()
	r.events.Record(model.Event{
		ID:         model.NewID(),
		Name:       name,
		Properties: properties,
		SessionID:  cfg.Session.SessionID,
		UserID:     cfg.Session.UserID,
		Timestamp:  now,
	})
	r.eval.ObserveEvent(name, now)
	r.dispatchAlertsLocked(cfg, r.eval.Evaluate(cfg.Detection))
	if o.immediate {
		r.spawnLocked(func() { r.Flush(FlushImmediate) })
	}
}

// RecordError classifies and stores err. The stack is captured at the call
// site and truncated to the configured bound.
func (r *Recorder) RecordError(err error, context map[string]string) {
	defer r.contain("recordError")
	if err == nil {
		return
	}
	r.recordErrorDetail(model.ErrorDetail{
		Kind:    model.KindRuntimeError,
		Message: err.Error(),
		Stack:   string(debug.Stack()),
		Context: context,
	})
}

// RecordErrorDetail is the producer-adapter entry point: kind, stack and
// severity may be supplied; missing fields are filled by classification.
func (r *Recorder) RecordErrorDetail(detail model.ErrorDetail) {
	defer r.contain("recordErrorDetail")
	r.recordErrorDetail(detail)
}

func (r *Recorder) recordErrorDetail(detail model.ErrorDetail) {
	cfg := r.config()
	if detail.Kind == "" {
		detail.Kind = model.KindOther
	}
	if detail.Severity == "" {
		detail.Severity = model.ClassifySeverity(detail.Kind, detail.Message)
	}
	detail.Stack = model.TruncateStack(detail.Stack, cfg.Detection.MaxStackLength)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !cfg.Enabled.ErrorLogging {
		return
	}
	now := r.now().UTC()
	key := dedupe.Key(string(detail.Kind), detail.Message, detail.Stack)
	if r.dupes.Seen(key, now, cfg.Detection.DedupeWindow) {
		return
	}
	r.errs.Record(model.Event{
		ID:        model.NewID(),
		Name:      "error." + string(detail.Kind),
		SessionID: cfg.Session.SessionID,
		UserID:    cfg.Session.UserID,
		Timestamp: now,
		Error:     &detail,
	})
	r.eval.ObserveError(detail.Kind, detail.Severity, now)
	r.dispatchAlertsLocked(cfg, r.eval.Evaluate(cfg.Detection))
	if detail.Severity == model.SeverityCritical {
		// Critical failures go out on the guaranteed channel right away;
		// the page may not live to the next periodic flush.
		r.spawnLocked(func() { r.deliver(cfg, FlushImmediate, true) })
	}
}

// RecordMetric stores a sample. Memory samples additionally feed the
// leak-suspicion rule; nothing else alerts.
func (r *Recorder) RecordMetric(sample model.MetricSample) {
	defer r.contain("recordMetric")
	cfg := r.config()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !cfg.Enabled.Metrics {
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = r.now().UTC()
	}
	r.metrics.Record(model.Event{
		ID:        model.NewID(),
		Name:      "metric." + string(sample.Category),
		SessionID: cfg.Session.SessionID,
		UserID:    cfg.Session.UserID,
		Timestamp: sample.Timestamp,
		Metric:    &sample,
	})
	if sample.Category == model.CategoryMemory {
		r.dispatchAlertsLocked(cfg, r.eval.ObserveMemory(sample.Value, cfg.Detection))
	}
}

// Summary returns a snapshot of counters and buffer occupancy. Repeated
// calls without new activity return identical results.
func (r *Recorder) Summary() Summary {
	cfg := r.config()
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.eval.Snapshot()
	return Summary{
		SessionID:        cfg.Session.SessionID,
		Environment:      cfg.Session.Environment,
		BufferedEvents:   r.events.Len(),
		BufferedErrors:   r.errs.Len(),
		BufferedMetrics:  r.metrics.Len(),
		DroppedEvents:    r.events.Dropped() + r.errs.Dropped() + r.metrics.Dropped(),
		WindowOccupancy:  r.eval.WindowOccupancy(),
		Events:           stats.Events,
		ErrorsByKind:     stats.ErrorsByKind,
		ErrorsBySeverity: stats.ErrorsBySeverity,
		AlertsByKind:     stats.AlertsByKind,
		LastFlush:        r.lastFlush,
	}
}

// UpdateConfig applies threshold and flag overrides live. Buffer
// capacities and the transport are fixed at construction.
func (r *Recorder) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	config.ApplyDefaults(cfg)
	r.cfg.Store(cfg)
}

// Close stops the timers, makes a final guaranteed delivery attempt,
// spools whatever could not be handed off, and releases the transport.
// Idempotent; Record* calls after Close are silent no-ops.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.stop)
	r.mu.Unlock()
	r.wg.Wait()

	r.deliver(r.config(), FlushUnload, true)

	var errs []error
	if r.spool != nil {
		if err := r.spool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.transport.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type recordOptions struct {
	immediate bool
}

type RecordOption func(*recordOptions)

func Immediate() RecordOption {
	return func(o *recordOptions) { o.immediate = true }
}

func (r *Recorder) config() *config.Config {
	if v := r.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// contain is the façade-boundary guard: a panic anywhere in the pipeline
// is logged and swallowed, never propagated to the host and never fed
// back in as a new error record.
func (r *Recorder) contain(op string) {
	if v := recover(); v != nil {
		if r.logger != nil {
			r.logger.Error("telemetry failure contained", "op", op, "panic", fmt.Sprint(v))
		}
	}
}

// spawnLocked starts a tracked goroutine; callers hold r.mu so the closed
// check cannot race Close's wg.Wait.
func (r *Recorder) spawnLocked(f func()) {
	if r.closed {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		f()
	}()
}

func (r *Recorder) flushLoop(interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Flush(FlushPeriodic)
		case <-r.stop:
			return
		}
	}
}

func (r *Recorder) memoryLoop(interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sampleMemory()
		case <-r.stop:
			return
		}
	}
}

func (r *Recorder) sampleMemory() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.RecordMetric(model.MetricSample{
		Category: model.CategoryMemory,
		Value:    float64(m.HeapAlloc),
		Values: map[string]float64{
			"heapAlloc":   float64(m.HeapAlloc),
			"heapObjects": float64(m.HeapObjects),
			"sys":         float64(m.Sys),
		},
	})
}
