package orders

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
)

// memDB backs the store and catalog fakes. Transactions are serialised and
// roll every map back when fn fails.
type memDB struct {
	txMu sync.Mutex

	mu       sync.Mutex
	orders   map[string]Order
	products map[string]catalog.Product

	// failAdjust makes AdjustStock on the product fail with the given error.
	failAdjust map[string]error
	// failNext makes the next store call fail once.
	failNext error
	txCount  int
}

func newMemDB() *memDB {
	return &memDB{
		orders:     map[string]Order{},
		products:   map[string]catalog.Product{},
		failAdjust: map[string]error{},
	}
}

func (db *memDB) addProduct(id, sellerID, price string, stock int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.products[id] = catalog.Product{
		ID:        id,
		SellerID:  sellerID,
		Name:      "product " + id,
		UnitPrice: decimal.RequireFromString(price),
		Stock:     stock,
	}
}

func (db *memDB) stock(id string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.products[id].Stock
}

func (db *memDB) orderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.orders)
}

func (db *memDB) setStatus(orderID string, s Status) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.orders[orderID]
	o.Status = s
	db.orders[orderID] = o
}

func (db *memDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	db.txCount++
	savedOrders := cloneOrders(db.orders)
	savedProducts := maps.Clone(db.products)
	db.mu.Unlock()

	if err := fn(ctx); err != nil {
		db.mu.Lock()
		db.orders = savedOrders
		db.products = savedProducts
		db.mu.Unlock()
		return err
	}
	return nil
}

func cloneOrder(o Order) Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func cloneOrders(in map[string]Order) map[string]Order {
	out := make(map[string]Order, len(in))
	for k, v := range in {
		out[k] = cloneOrder(v)
	}
	return out
}

func (db *memDB) injected() error {
	if err := db.failNext; err != nil {
		db.failNext = nil
		return err
	}
	return nil
}

type memStore struct{ db *memDB }

func (s memStore) InsertOrder(_ context.Context, o Order) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.injected(); err != nil {
		return err
	}
	for _, existing := range s.db.orders {
		if o.ExternalID != "" && existing.BuyerID == o.BuyerID && existing.ExternalID == o.ExternalID {
			return errDuplicateExternalID
		}
	}
	s.db.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s memStore) GetOrder(_ context.Context, orderID string) (Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.injected(); err != nil {
		return Order{}, err
	}
	o, ok := s.db.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s memStore) LockOrder(ctx context.Context, orderID string) (Order, error) {
	return s.GetOrder(ctx, orderID)
}

func (s memStore) FindByExternalID(_ context.Context, buyerID, externalID string) (Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, o := range s.db.orders {
		if o.BuyerID == buyerID && o.ExternalID == externalID {
			return cloneOrder(o), nil
		}
	}
	return Order{}, ErrNotFound
}

func (s memStore) UpdateItemQuantity(_ context.Context, orderID, itemID string, qty int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			o.Items[i].Quantity = qty
			return nil
		}
	}
	return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
}

func (s memStore) DeleteItem(_ context.Context, orderID, itemID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	n := len(o.Items)
	o.Items = slices.DeleteFunc(o.Items, func(it OrderItem) bool { return it.ID == itemID })
	if len(o.Items) == n {
		return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	s.db.orders[orderID] = o
	return nil
}

func (s memStore) DeleteOrder(_ context.Context, orderID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.orders[orderID]; !ok {
		return ErrNotFound
	}
	delete(s.db.orders, orderID)
	return nil
}

func (s memStore) UpdateOrder(_ context.Context, o Order) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.injected(); err != nil {
		return err
	}
	cur, ok := s.db.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = o.Status
	cur.TotalAmount = o.TotalAmount
	cur.UpdatedAt = o.UpdatedAt
	s.db.orders[o.ID] = cur
	return nil
}

func (s memStore) ListByBuyer(_ context.Context, buyerID string) ([]Order, error) {
	return s.filter(func(o Order) bool { return o.BuyerID == buyerID }), nil
}

func (s memStore) ListBySeller(_ context.Context, sellerID string) ([]Order, error) {
	return s.filter(func(o Order) bool { return o.HasSeller(sellerID) }), nil
}

func (s memStore) filter(keep func(Order) bool) []Order {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []Order{}
	for _, o := range s.db.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out
}

type memCatalog struct{ db *memDB }

func (c memCatalog) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	p, ok := c.db.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, id)
	}
	return p, nil
}

func (c memCatalog) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.db.failAdjust[id]; err != nil {
		return 0, err
	}
	p, ok := c.db.products[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, id)
	}
	if p.Stock+delta < 0 {
		return p.Stock, &catalog.ShortfallError{ProductID: id, Requested: -delta, Available: p.Stock}
	}
	p.Stock += delta
	c.db.products[id] = p
	return p.Stock, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Emit(_ context.Context, ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) all() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.events)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type cacheEntry struct {
	version int64
	snap    StatusSnapshot
	gone    bool
}

// memCache mirrors redisx.StatusCache: versioned writes, tombstones on evict.
type memCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	gets int
}

func (c *memCache) Get(_ context.Context, orderID string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	e, ok := c.data[orderID]
	if !ok || e.gone {
		return false, nil
	}
	p, ok := dst.(*StatusSnapshot)
	if !ok {
		return false, errors.New("unexpected destination")
	}
	*p = e.snap
	return true, nil
}

func (c *memCache) Put(_ context.Context, orderID string, version int64, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string]cacheEntry{}
	}
	if cur, ok := c.data[orderID]; ok && cur.version > version {
		return nil
	}
	c.data[orderID] = cacheEntry{version: version, snap: v.(StatusSnapshot)}
	return nil
}

func (c *memCache) Evict(_ context.Context, orderID string, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string]cacheEntry{}
	}
	c.data[orderID] = cacheEntry{version: version, gone: true}
	return nil
}

// drop empties the entry as a TTL expiry would.
func (c *memCache) drop(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, orderID)
}

func (c *memCache) lookup(orderID string) (StatusSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[orderID]
	if !ok || e.gone {
		return StatusSnapshot{}, false
	}
	return e.snap, true
}

// holdingCache parks the first Put of status until release is closed.
type holdingCache struct {
	*memCache
	status  Status
	held    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *holdingCache) Put(ctx context.Context, orderID string, version int64, v any) error {
	if snap, ok := v.(StatusSnapshot); ok && snap.Status == c.status {
		hold := false
		c.once.Do(func() { hold = true })
		if hold {
			close(c.held)
			<-c.release
		}
	}
	return c.memCache.Put(ctx, orderID, version, v)
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memIdempotency) Lookup(_ context.Context, buyerID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[buyerID+"/"+key]
	return id, ok, nil
}

func (m *memIdempotency) Remember(_ context.Context, buyerID, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	m.keys[buyerID+"/"+key] = orderID
	return nil
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%04d", n.Add(1)) }
}

func fixedClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Second) }
}
