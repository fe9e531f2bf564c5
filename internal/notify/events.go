package notify

import (
	"encoding/json"
	"time"
)

type Type string

const (
	TypeOrderReceived      Type = "ORDER_RECEIVED"
	TypeOrderStatusChanged Type = "ORDER_STATUS_CHANGED"
)

const (
	EventNotificationRequested = "NotificationRequested"
	EventVersion               = 1
)

// Event is what the order engine hands to the dispatcher.
type Event struct {
	RecipientID   string
	Type          Type
	OrderID       string
	RelatedUserID string
	Message       string
}

// Notification is one entry of a user's append-only log.
type Notification struct {
	ID              string    `json:"id"`
	RecipientUserID string    `json:"recipient_user_id"`
	Type            Type      `json:"type"`
	OrderID         string    `json:"order_id"`
	RelatedUserID   string    `json:"related_user_id"`
	Message         string    `json:"message"`
	IsRead          bool      `json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type NotificationPayload struct {
	RecipientUserID string `json:"recipient_user_id"`
	Type            Type   `json:"type"`
	OrderID         string `json:"order_id"`
	RelatedUserID   string `json:"related_user_id"`
	Message         string `json:"message"`
}

// NewEnvelope wraps n for a broker. The envelope id is the notification id so
// redelivery maps onto the same log entry.
func NewEnvelope(n Notification, producer string) (Envelope, error) {
	payload, err := json.Marshal(NotificationPayload{
		RecipientUserID: n.RecipientUserID,
		Type:            n.Type,
		OrderID:         n.OrderID,
		RelatedUserID:   n.RelatedUserID,
		Message:         n.Message,
	})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       n.ID,
		EventType:     EventNotificationRequested,
		EventVersion:  EventVersion,
		OccurredAt:    n.CreatedAt.UTC(),
		Producer:      producer,
		CorrelationID: n.OrderID,
		Payload:       payload,
	}, nil
}

// Notification rebuilds the log entry carried by the envelope.
func (e Envelope) Notification() (Notification, error) {
	var p NotificationPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return Notification{}, err
	}
	return Notification{
		ID:              e.EventID,
		RecipientUserID: p.RecipientUserID,
		Type:            p.Type,
		OrderID:         p.OrderID,
		RelatedUserID:   p.RelatedUserID,
		Message:         p.Message,
		CreatedAt:       e.OccurredAt,
	}, nil
}
