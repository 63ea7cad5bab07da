package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// KafkaPublisher writes events to Kafka. One writer serves every topic, the
// topic is set per message.
type KafkaPublisher struct {
	writer messageWriter
	prefix string
}

// NewKafkaPublisher creates a publisher for the given brokers. prefix is
// prepended to every topic name.
func NewKafkaPublisher(brokers []string, prefix string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: newWriter(brokers),
		prefix: prefix,
	}
}

// newWriter hashes the message key so every event of one order lands on the
// same partition. Batches are flushed after a few milliseconds instead of the
// library default of one second, since callers wait for the write.
func newWriter(brokers []string) *kafkaGo.Writer {
	return &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers...),
		Balancer:               &kafkaGo.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           PublishTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafkaGo.RequireOne,
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := k.writer.WriteMessages(ctx, kafkaGo.Message{
		Topic: k.prefix + topic,
		Key:   []byte(key),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("failed to write to %s: %w", k.prefix+topic, err)
	}
	return nil
}

// Close flushes pending writes.
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
