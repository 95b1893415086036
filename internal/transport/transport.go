// Package transport delivers batches to the remote collector. Two modes:
// reliable delivery whose failure the caller observes and recovers from by
// requeueing, and best-effort delivery for page teardown, where the
// outcome is reported but never retried.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pagepulse/config"
	"pagepulse/model"
)

type Transport interface {
	// SendReliable posts a batch and reports failure so the caller can
	// requeue. A non-success collector response is a failure.
	SendReliable(ctx context.Context, channel model.Channel, batch model.Batch) error
	// SendBestEffort dispatches within a short bounded timeout and reports
	// only whether the payload was handed off. Never retried.
	SendBestEffort(channel model.Channel, batch model.Batch) bool
	Close() error
}

func New(cfg config.TransportConfig, bestEffortTimeout time.Duration, logger *slog.Logger) (Transport, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "http":
		return newHTTP(cfg, bestEffortTimeout, logger)
	case "kafka":
		return newKafka(cfg, bestEffortTimeout, logger)
	default:
		return nil, fmt.Errorf("unsupported transport driver: %q", cfg.Driver)
	}
}
