package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ErrNotFound signals an unknown notification or one addressed to someone else.
var ErrNotFound = errors.New("notify: notification not found")

// Store is the durable per-user notification log.
type Store struct{ DB postgres.DBTX }

const notificationColumns = `id::text, recipient_user_id, type, order_id, related_user_id, message, is_read, created_at`

// Deliver appends n to the recipient's log. Replays of the same id are no-ops.
func (s *Store) Deliver(ctx context.Context, n Notification) error {
	_, err := postgres.Conn(ctx, s.DB).Exec(ctx, `
		INSERT INTO notifications(id, recipient_user_id, type, order_id, related_user_id, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.RecipientUserID, string(n.Type), n.OrderID, n.RelatedUserID, n.Message, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

type ListFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]Notification, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := postgres.Conn(ctx, s.DB).Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_user_id=$1 AND ($2 = false OR NOT is_read)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, f.UserID, f.UnreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var (
			n   Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.RecipientUserID, &typ, &n.OrderID, &n.RelatedUserID,
			&n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = Type(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := postgres.Conn(ctx, s.DB).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_user_id=$1 AND NOT is_read`, userID).Scan(&n)
	return n, err
}

// MarkRead acknowledges one notification. Only its recipient may do so.
func (s *Store) MarkRead(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	var read bool
	err := postgres.Conn(ctx, s.DB).QueryRow(ctx, `
		UPDATE notifications SET is_read = true
		WHERE id=$1 AND recipient_user_id=$2
		RETURNING is_read`, id, userID).Scan(&read)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ct, err := postgres.Conn(ctx, s.DB).Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE recipient_user_id=$1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
