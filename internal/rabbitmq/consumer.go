package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Handler returns nil only when the delivery may be acknowledged.
type Handler func(ctx context.Context, body []byte) error

type Consumer struct {
	channel  *amqp.Channel
	queue    string
	prefetch int
	logger   *zap.Logger
}

func NewConsumer(conn *amqp.Connection, queue string, prefetch int, logger *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareQueue(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{channel: ch, queue: queue, prefetch: prefetch, logger: logger}, nil
}

// Start consumes with manual acks until ctx is done or the channel closes.
// Failed deliveries are nacked and requeued.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.channel.Close()

	msgs, err := c.channel.ConsumeWithContext(ctx,
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq: delivery channel closed")
			}
			c.handle(ctx, h, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, d amqp.Delivery) {
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, tableCarrier(d.Headers))
	if err := h(msgCtx, d.Body); err != nil {
		c.logger.Error("message handler failed",
			zap.Error(err),
			zap.String("queue", c.queue),
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Bool("redelivered", d.Redelivered),
		)
		if err := d.Nack(false, true); err != nil {
			c.logger.Error("nack failed", zap.Error(err))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", zap.Error(err), zap.Uint64("delivery_tag", d.DeliveryTag))
	}
}
