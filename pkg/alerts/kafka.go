package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

// KafkaNotifier writes alerts to a Kafka topic, keyed by user so one home's
// alerts stay ordered within a partition.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a Kafka notifier.
func NewKafkaNotifier(brokers []string, topic, compression string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
			Compression:  getCompression(compression),
			// The dispatcher's breaker owns retry policy.
			MaxAttempts: 1,
		},
	}, nil
}

func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

// Message builds the record written for alert: keyed by user, with the
// alert ID and kind as headers and the alert time as the record time.
func (k *KafkaNotifier) Message(alert model.Alert) (kafka.Message, error) {
	body, err := json.Marshal(alert)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal kafka payload: %w", err)
	}
	return kafka.Message{
		Key:   []byte(alert.UserID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(alert.ID)},
			{Key: "kind", Value: []byte(alert.Kind)},
		},
		Time: alert.Timestamp,
	}, nil
}

func (k *KafkaNotifier) Send(ctx context.Context, alert model.Alert) error {
	msg, err := k.Message(alert)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka alert: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
