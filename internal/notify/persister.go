package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Deduper remembers processed event ids across redeliveries.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

// Persister consumes broker envelopes and appends them to the log.
type Persister struct {
	Sink   Sink
	Dedup  Deduper
	Logger *zap.Logger
}

// Handle returns nil only when the message may be acknowledged.
func (p *Persister) Handle(ctx context.Context, body []byte) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// poison message: acknowledge so it does not block the partition
		logger.Error("discarding undecodable notification envelope", zap.Error(err), zap.ByteString("raw_value", body))
		return nil
	}
	if env.EventType != EventNotificationRequested {
		return nil
	}

	if p.Dedup != nil {
		if seen, err := p.Dedup.Seen(ctx, env.EventID); err == nil && seen {
			logger.Debug("skipping duplicate notification", zap.String("event_id", env.EventID))
			return nil
		}
	}

	n, err := env.Notification()
	if err != nil {
		logger.Error("discarding notification with bad payload", zap.Error(err), zap.String("event_id", env.EventID))
		return nil
	}
	if err := p.Sink.Deliver(ctx, n); err != nil {
		return fmt.Errorf("persist notification %s: %w", n.ID, err)
	}

	if p.Dedup != nil {
		if err := p.Dedup.Mark(ctx, env.EventID); err != nil {
			logger.Warn("dedup mark failed", zap.Error(err), zap.String("event_id", env.EventID))
		}
	}
	logger.Info("notification stored",
		zap.String("notification_id", n.ID),
		zap.String("recipient", n.RecipientUserID),
		zap.String("order_id", n.OrderID),
	)
	return nil
}
