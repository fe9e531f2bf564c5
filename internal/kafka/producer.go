package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Producer writes keyed messages to one topic. Writes are synchronous so the
// caller learns about broker failures; callers that must not block put a
// queue in front of it.
type Producer struct {
	w       *kafka.Writer
	headers []kafka.Header
}

// NewProducer returns a producer for topic. headers are attached to every
// message (event type, schema version).
func NewProducer(brokers []string, topic string, headers ...kafka.Header) *Producer {
	return &Producer{
		headers: headers,
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish sends value under key, carrying the trace context of ctx in the
// message headers.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Time:    time.Now(),
		Headers: append([]kafka.Header(nil), p.headers...),
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", p.w.Topic, err)
	}
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
