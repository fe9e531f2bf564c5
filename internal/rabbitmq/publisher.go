package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	dialAttempts = 10
	dialBackoff  = 2 * time.Second
)

// Dial connects to the broker, retrying while it is still starting up.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*amqp.Connection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 1; i <= dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("rabbitmq not reachable, retrying",
			zap.Error(err), zap.Int("attempt", i), zap.Duration("backoff", dialBackoff))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialBackoff):
		}
	}
	return nil, fmt.Errorf("connect to rabbitmq: %w", err)
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Publisher sends persistent messages to one durable queue through the
// default exchange.
type Publisher struct {
	mu      sync.Mutex
	channel *amqp.Channel
	queue   string
	headers amqp.Table
}

// NewPublisher opens a channel on conn and declares queue. headers are
// attached to every message.
func NewPublisher(conn *amqp.Connection, queue string, headers amqp.Table) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareQueue(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{channel: ch, queue: queue, headers: headers}, nil
}

// Publish sends value to the queue. The default exchange routes on the
// queue name, so key travels in the x-key header.
func (p *Publisher) Publish(ctx context.Context, key string, value []byte) error {
	headers := amqp.Table{"x-key": key}
	for k, v := range p.headers {
		headers[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, tableCarrier(headers))

	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.channel.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Headers:      headers,
			Body:         value,
		})
	if err != nil {
		return fmt.Errorf("rabbitmq publish to %s: %w", p.queue, err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.channel.Close() }

// tableCarrier adapts AMQP headers to propagation.TextMapCarrier.
type tableCarrier amqp.Table

func (c tableCarrier) Get(key string) string {
	v, _ := c[key].(string)
	return v
}

func (c tableCarrier) Set(key, value string) { c[key] = value }

func (c tableCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
