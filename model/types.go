package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ErrorKind is an open vocabulary: the constants below are the canonical
// kinds, but producer adapters may supply more specific values (the api
// failure rule matches kinds by substring).
type ErrorKind string

const (
	KindRuntimeError       ErrorKind = "runtime-error"
	KindUnhandledRejection ErrorKind = "unhandled-rejection"
	KindResourceLoad       ErrorKind = "resource-load-failure"
	KindMemoryPressure     ErrorKind = "memory-pressure"
	KindNetworkRequest     ErrorKind = "network-request"
	KindOther              ErrorKind = "other"
)

type MetricCategory string

const (
	CategoryPageLoad    MetricCategory = "page-load"
	CategoryInteraction MetricCategory = "interaction"
	CategoryMemory      MetricCategory = "memory"
	CategoryNetwork     MetricCategory = "network"
	CategoryCoreVital   MetricCategory = "core-vital"
)

type AlertKind string

const (
	AlertHighErrorRate     AlertKind = "high-error-rate"
	AlertCriticalErrors    AlertKind = "critical-error-threshold"
	AlertAPIFailurePattern AlertKind = "api-failure-pattern"
	AlertMemoryLeak        AlertKind = "memory-leak-suspected"
)

// Channel names one logical egress stream to the collector.
type Channel string

const (
	ChannelEvents  Channel = "events"
	ChannelErrors  Channel = "errors"
	ChannelMetrics Channel = "metrics"
)

// Event is the envelope every recorded item travels in. Exactly one of
// Error or Metric is set for error records and metric samples; both are
// nil for plain events. Immutable once created.
type Event struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Properties map[string]any    `json:"properties,omitempty"`
	SessionID  string            `json:"sessionId"`
	UserID     string            `json:"userId,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Source     map[string]string `json:"sourceMetadata,omitempty"`
	Error      *ErrorDetail      `json:"error,omitempty"`
	Metric     *MetricSample     `json:"metric,omitempty"`
}

type ErrorDetail struct {
	Kind     ErrorKind         `json:"kind"`
	Message  string            `json:"message"`
	Stack    string            `json:"stack,omitempty"`
	Severity Severity          `json:"severity"`
	Context  map[string]string `json:"context,omitempty"`
}

type MetricSample struct {
	Category  MetricCategory     `json:"category"`
	Value     float64            `json:"value"`
	Values    map[string]float64 `json:"values,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// RateWindowEntry is the minimal projection kept for threshold arithmetic.
type RateWindowEntry struct {
	Timestamp time.Time
	Severity  Severity
	Kind      string
}

type Alert struct {
	ID        string         `json:"id"`
	Kind      AlertKind      `json:"kind"`
	Evidence  map[string]any `json:"evidence,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Resolved  bool           `json:"resolved"`
}

// AsEvent wraps an alert for dispatch on the wire; alerts share the batch
// payload shape with everything else.
func (a Alert) AsEvent(sessionID, userID string) Event {
	return Event{
		ID:        a.ID,
		Name:      "alert." + string(a.Kind),
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: a.Timestamp,
		Properties: map[string]any{
			"kind":     string(a.Kind),
			"evidence": a.Evidence,
			"resolved": a.Resolved,
		},
	}
}

// Batch is the collector payload. This shape is the compatibility surface
// and must stay stable.
type Batch struct {
	SessionID string        `json:"sessionId"`
	UserID    string        `json:"userId,omitempty"`
	Events    []Event       `json:"events"`
	Metadata  BatchMetadata `json:"metadata"`
}

type BatchMetadata struct {
	FlushTime   time.Time `json:"flushTime"`
	EventCount  int       `json:"eventCount"`
	Environment string    `json:"environment"`
}

// NewID builds a best-effort-unique identifier from the current time plus
// a random suffix. Collisions are tolerated; nothing relies on uniqueness.
func NewID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
