package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/itohio/goppg/pkg/config"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes payloads to one topic keyed by device id, so every
// device's reports stay ordered within a partition.
type KafkaSink struct {
	writer kafkaMessageWriter
}

var _ Sink = (*KafkaSink)(nil)

// NewKafkaSink creates a writer for the brokers and topic of cfg.
func NewKafkaSink(cfg config.KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic must not be empty")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSink{writer: w}, nil
}

// Name returns "kafka".
func (s *KafkaSink) Name() string {
	return "kafka"
}

// Publish writes one message with a "kind" header.
func (s *KafkaSink) Publish(ctx context.Context, kind Kind, deviceID string, payload []byte) error {
	msg := kafka.Message{
		Key:   []byte(deviceID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(kind)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s message: %w", kind, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
