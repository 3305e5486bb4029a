// Package trace publishes session events to a Kafka topic so external
// systems can observe agent runs. Publishing is best-effort: a broker
// outage never blocks or fails the session.
package trace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/codewright/codewright/internal/bus"
)

// messageWriter is the slice of kafka.Writer the publisher uses. Tests
// substitute an in-memory implementation.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher forwards session events to a Kafka topic.
type Publisher struct {
	writer messageWriter
}

// NewPublisher creates a publisher writing to topic on the given brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Publish writes one event. Messages are keyed by session ID so events of
// a session land on one partition and keep their order.
func (p *Publisher) Publish(ctx context.Context, ev bus.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	msg := kafka.Message{
		Key:     []byte(ev.SessionID),
		Value:   payload,
		Headers: []kafka.Header{{Key: "event_kind", Value: []byte(ev.Kind)}},
		Time:    ev.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish trace event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
