package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const deliverTimeout = 5 * time.Second

// Sink persists or forwards a notification.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

type delivery struct {
	ctx context.Context
	n   Notification
}

// Dispatcher accepts events without blocking the caller and hands them to the
// sink from a background loop. A full queue or a failing sink is logged and
// the event dropped; callers never see an error.
type Dispatcher struct {
	sink   Sink
	logger *zap.Logger
	clock  func() time.Time
	newID  func() string

	mu      sync.RWMutex
	started bool
	closed  bool
	inbox   chan delivery
	closeCh chan struct{}
}

func NewDispatcher(sink Sink, buf int, logger *zap.Logger) *Dispatcher {
	if buf <= 0 {
		buf = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sink:    sink,
		logger:  logger,
		clock:   time.Now,
		newID:   uuid.NewString,
		inbox:   make(chan delivery, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the delivery loop. It is a no-op once started or closed.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	go func() {
		defer close(d.closeCh)
		for {
			select {
			case <-ctx.Done():
				d.Close()
				for m := range d.inbox {
					d.deliver(m)
				}
				return
			case m, ok := <-d.inbox:
				if !ok {
					return
				}
				d.deliver(m)
			}
		}
	}()
}

// Emit queues ev for delivery. It never blocks and never fails.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	n := Notification{
		ID:              d.newID(),
		RecipientUserID: ev.RecipientID,
		Type:            ev.Type,
		OrderID:         ev.OrderID,
		RelatedUserID:   ev.RelatedUserID,
		Message:         ev.Message,
		CreatedAt:       d.clock().UTC(),
	}
	fields := []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("order_id", n.OrderID),
		zap.String("recipient", n.RecipientUserID),
		zap.String("type", string(n.Type)),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("notification dropped: dispatcher closed", fields...)
		return
	}
	select {
	case d.inbox <- delivery{ctx: context.WithoutCancel(ctx), n: n}:
	default:
		d.logger.Warn("notification dropped: queue full", fields...)
	}
}

// Close stops intake; queued notifications are still delivered. A
// dispatcher that was never started has no loop to deliver them, so they
// are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.inbox)
	if !d.started {
		if n := len(d.inbox); n > 0 {
			d.logger.Warn("notifications dropped: dispatcher never started", zap.Int("count", n))
		}
		close(d.closeCh)
	}
}

// WaitClosed blocks until the loop has drained the queue.
func (d *Dispatcher) WaitClosed() { <-d.closeCh }

func (d *Dispatcher) deliver(m delivery) {
	ctx, cancel := context.WithTimeout(m.ctx, deliverTimeout)
	defer cancel()

	if err := d.sink.Deliver(ctx, m.n); err != nil {
		d.logger.Error("notification delivery failed",
			zap.Error(err),
			zap.String("notification_id", m.n.ID),
			zap.String("order_id", m.n.OrderID),
			zap.String("recipient", m.n.RecipientUserID),
			zap.String("type", string(m.n.Type)),
		)
		return
	}
	d.logger.Debug("notification delivered",
		zap.String("notification_id", m.n.ID),
		zap.String("recipient", m.n.RecipientUserID),
	)
}
