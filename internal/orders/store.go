package orders

import (
	"context"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
)

// Store is the durable order repository. Implementations join the
// transaction carried by ctx when there is one.
type Store interface {
	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, orderID string) (Order, error)
	LockOrder(ctx context.Context, orderID string) (Order, error)
	FindByExternalID(ctx context.Context, buyerID, externalID string) (Order, error)
	UpdateItemQuantity(ctx context.Context, orderID, itemID string, qty int) error
	DeleteItem(ctx context.Context, orderID, itemID string) error
	DeleteOrder(ctx context.Context, orderID string) error
	UpdateOrder(ctx context.Context, o Order) error
	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Order, error)
}

// Catalog is the product collaborator. AdjustStock takes a negative delta to
// debit and a positive one to credit.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (int, error)
}

// UnitOfWork runs fn atomically; Store and Catalog calls made with the ctx
// passed to fn share the transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier accepts notification events without blocking.
type Notifier interface {
	Emit(ctx context.Context, ev notify.Event)
}

// StatusCache is a read-through cache of order status snapshots.
type StatusCache interface {
	Get(ctx context.Context, orderID string, dst any) (bool, error)
	// Put stores v unless the cache already holds a newer version.
	Put(ctx context.Context, orderID string, version int64, v any) error
	// Evict marks the order gone as of version; older Puts are ignored.
	Evict(ctx context.Context, orderID string, version int64) error
}

// IdempotencyIndex maps a buyer's checkout key to the order it produced.
type IdempotencyIndex interface {
	Lookup(ctx context.Context, buyerID, key string) (string, bool, error)
	Remember(ctx context.Context, buyerID, key, orderID string) error
}

// StatusSnapshot is what the status cache holds per order: enough to answer
// and authorise a status read without touching Postgres.
type StatusSnapshot struct {
	OrderID   string   `json:"order_id"`
	Status    Status   `json:"status"`
	BuyerID   string   `json:"buyer_id"`
	SellerIDs []string `json:"seller_ids"`
}

// statusVersion orders cache writes of one order. UpdatedAt only moves
// forward under the order lock, at microsecond precision as stored.
func statusVersion(o Order) int64 { return o.UpdatedAt.UnixMicro() }

func snapshotOf(o Order) StatusSnapshot {
	return StatusSnapshot{OrderID: o.ID, Status: o.Status, BuyerID: o.BuyerID, SellerIDs: o.SellerIDs()}
}

type noopNotifier struct{}

func (noopNotifier) Emit(context.Context, notify.Event) {}
