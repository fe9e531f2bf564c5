package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is a message broker producer (Kafka writer, AMQP channel).
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// BrokerSink forwards notifications to a broker; cmd/notifier persists them.
type BrokerSink struct {
	Publisher Publisher
	Producer  string
}

func (s *BrokerSink) Deliver(ctx context.Context, n Notification) error {
	env, err := NewEnvelope(n, s.Producer)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	// recipient as key keeps one user's log ordered within a partition
	return s.Publisher.Publish(ctx, n.RecipientUserID, b)
}
