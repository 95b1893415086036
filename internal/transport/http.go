package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"pagepulse/config"
	"pagepulse/model"
)

type httpTransport struct {
	client            *http.Client
	endpoints         map[model.Channel]string
	headers           map[string]string
	bestEffortTimeout time.Duration
	logger            *slog.Logger
}

func newHTTP(cfg config.TransportConfig, bestEffortTimeout time.Duration, logger *slog.Logger) (*httpTransport, error) {
	if cfg.EventsURL == "" {
		return nil, errors.New("http transport requires an events endpoint")
	}
	endpoints := map[model.Channel]string{
		model.ChannelEvents:  cfg.EventsURL,
		model.ChannelErrors:  cfg.ErrorsURL,
		model.ChannelMetrics: cfg.MetricsURL,
	}
	// Channels without their own endpoint share the events one.
	for ch, url := range endpoints {
		if url == "" {
			endpoints[ch] = cfg.EventsURL
		}
	}
	if bestEffortTimeout <= 0 {
		bestEffortTimeout = 2 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpTransport{
		client:            &http.Client{Timeout: timeout},
		endpoints:         endpoints,
		headers:           cfg.Headers,
		bestEffortTimeout: bestEffortTimeout,
		logger:            logger,
	}, nil
}

func (t *httpTransport) SendReliable(ctx context.Context, channel model.Channel, batch model.Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoints[channel], bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", batch.SessionID)
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s batch: %w", channel, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector returned %s for %s batch", resp.Status, channel)
	}
	return nil
}

func (t *httpTransport) SendBestEffort(channel model.Channel, batch model.Batch) bool {
	ctx, cancel := context.WithTimeout(context.Background(), t.bestEffortTimeout)
	defer cancel()
	if err := t.SendReliable(ctx, channel, batch); err != nil {
		if t.logger != nil {
			t.logger.Debug("best-effort dispatch failed", "channel", string(channel), "err", err)
		}
		return false
	}
	return true
}

func (t *httpTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
