package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"pagepulse/config"
	"pagepulse/model"
)

// kafkaTransport publishes batches to a topic instead of posting them over
// HTTP, for hosts that run next to a broker. The channel name is the
// message key so a consumer can fan out per stream.
type kafkaTransport struct {
	writer            *kafka.Writer
	bestEffortTimeout time.Duration
	logger            *slog.Logger
}

func newKafka(cfg config.TransportConfig, bestEffortTimeout time.Duration, logger *slog.Logger) (*kafkaTransport, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		return nil, fmt.Errorf("kafka transport requires brokers and topic")
	}
	if bestEffortTimeout <= 0 {
		bestEffortTimeout = 2 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &kafkaTransport{
		writer:            writer,
		bestEffortTimeout: bestEffortTimeout,
		logger:            logger,
	}, nil
}

func (t *kafkaTransport) SendReliable(ctx context.Context, channel model.Channel, batch model.Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(channel),
		Value: data,
		Time:  batch.Metadata.FlushTime,
	}
	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s batch: %w", channel, err)
	}
	return nil
}

func (t *kafkaTransport) SendBestEffort(channel model.Channel, batch model.Batch) bool {
	ctx, cancel := context.WithTimeout(context.Background(), t.bestEffortTimeout)
	defer cancel()
	if err := t.SendReliable(ctx, channel, batch); err != nil {
		if t.logger != nil {
			t.logger.Debug("best-effort publish failed", "channel", string(channel), "err", err)
		}
		return false
	}
	return true
}

func (t *kafkaTransport) Close() error {
	return t.writer.Close()
}
