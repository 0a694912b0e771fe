package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"sandwich-watch/internal/domain"
)

// KafkaConfig holds Kafka producer configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes findings as JSON envelopes. Messages are keyed by
// frontrunner so one attacker's findings land on the same partition.
type KafkaSink struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaSink creates a KafkaSink backed by a kafka.Writer.
func NewKafkaSink(config KafkaConfig) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaSink{writer: writer, now: time.Now}
}

// Emit publishes f.
func (s *KafkaSink) Emit(ctx context.Context, f *domain.Finding) error {
	data, err := json.Marshal(NewEnvelope(f))
	if err != nil {
		return fmt.Errorf("marshal finding: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(f.FrontrunnerAccount.Hex()),
		Value: data,
		Time:  s.now(),
		Headers: []kafka.Header{
			{Key: "alert-id", Value: []byte(domain.FindingAlertID)},
			{Key: "finding-id", Value: []byte(f.FindingID)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish finding %s: %w", f.FindingID, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

var _ Sink = (*KafkaSink)(nil)
