package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
)

type harness struct {
	svc   *Service
	db    *memDB
	notes *recordingNotifier
	cache *memCache
	idem  *memIdempotency
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithCache(t, nil)
}

// newHarnessWithCache lets a test wrap the cache the service writes to.
func newHarnessWithCache(t *testing.T, wrap func(*memCache) StatusCache) *harness {
	t.Helper()
	h := &harness{
		db:    newMemDB(),
		notes: &recordingNotifier{},
		cache: &memCache{},
		idem:  &memIdempotency{},
	}
	var cache StatusCache = h.cache
	if wrap != nil {
		cache = wrap(h.cache)
	}
	svc, err := NewService(ServiceDeps{
		Orders:      memStore{db: h.db},
		Catalog:     memCatalog{db: h.db},
		UnitOfWork:  h.db,
		Notifier:    h.notes,
		StatusCache: cache,
		Idempotency: h.idem,
		Logger:      zaptest.NewLogger(t),
		Clock:       fixedClock(),
		IDGenerator: sequentialIDs(),
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func checkoutCmd(buyer string, lines ...LineInput) CreateOrderCommand {
	return CreateOrderCommand{
		BuyerID: buyer,
		Email:   "buyer@example.com",
		Phone:   "+62 812-3456-7890",
		Items:   lines,
	}
}

func line(productID string, qty int) LineInput {
	return LineInput{ProductID: productID, Quantity: qty}
}

func (h *harness) mixedOrder(t *testing.T) Order {
	t.Helper()
	h.db.addProduct("p1", "seller-a", "10.00", 5)
	h.db.addProduct("p2", "seller-b", "4.50", 8)
	o, err := h.svc.CreateOrder(context.Background(), checkoutCmd("buyer", line("p1", 2), line("p2", 3)))
	require.NoError(t, err)
	h.notes.reset()
	return o
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewService(ServiceDeps{})
	require.Error(t, err)

	db := newMemDB()
	_, err = NewService(ServiceDeps{Orders: memStore{db: db}, Catalog: memCatalog{db: db}})
	require.ErrorContains(t, err, "unit of work")
}

func TestCreateOrderDebitsStockAndNotifiesSeller(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.db.addProduct("1", "S", "10.00", 5)

	o, err := h.svc.CreateOrder(context.Background(), checkoutCmd("B", line("1", 2)))
	require.NoError(t, err)

	require.Equal(t, StatusPending, o.Status)
	require.True(t, decimal.RequireFromString("20.00").Equal(o.TotalAmount))
	require.Len(t, o.Items, 1)
	require.Equal(t, "S", o.Items[0].SellerID)
	require.Equal(t, "product 1", o.Items[0].ProductName)
	require.Equal(t, 3, h.db.stock("1"))

	require.Equal(t, []notify.Event{{
		RecipientID:   "S",
		Type:          notify.TypeOrderReceived,
		OrderID:       o.ID,
		RelatedUserID: "B",
		Message:       orderReceivedMessage,
	}}, h.notes.all())

	snap, ok := h.cache.lookup(o.ID)
	require.True(t, ok)
	require.Equal(t, StatusPending, snap.Status)
}

func TestRejectOrderRestoresStockAndNotifiesBuyer(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.db.addProduct("1", "S", "10.00", 5)
	o, err := h.svc.CreateOrder(context.Background(), checkoutCmd("B", line("1", 2)))
	require.NoError(t, err)
	h.notes.reset()

	o, err = h.svc.RejectOrder(context.Background(), o.ID, "S")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, o.Status)
	require.Equal(t, 5, h.db.stock("1"))

	events := h.notes.all()
	require.Len(t, events, 1)
	require.Equal(t, "B", events[0].RecipientID)
	require.Equal(t, notify.TypeOrderStatusChanged, events[0].Type)
	require.Equal(t, "S", events[0].RelatedUserID)
	require.Equal(t, "order cancelled", events[0].Message)
}

func TestCreateOrderRejectsSelfPurchase(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.db.addProduct("1", "B", "10.00", 5)

	_, err := h.svc.CreateOrder(context.Background(), checkoutCmd("B", line("1", 1)))
	require.ErrorIs(t, err, ErrSelfPurchase)
	require.Zero(t, h.db.orderCount())
	require.Equal(t, 5, h.db.stock("1"))
	require.Empty(t, h.notes.all())
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	t.Parallel()

	t.Run("shortfall on a later line", func(t *testing.T) {
		h := newHarness(t)
		h.db.addProduct("a", "S1", "1.00", 10)
		h.db.addProduct("b", "S2", "1.00", 1)

		_, err := h.svc.CreateOrder(context.Background(), checkoutCmd("B", line("a", 4), line("b", 2)))
		var stockErr *StockError
		require.ErrorAs(t, err, &stockErr)
		require.ErrorIs(t, err, ErrInsufficientStock)
		require.Equal(t, "b", stockErr.ProductID)
		require.Equal(t, 1, stockErr.Available)
		require.Equal(t, 10, h.db.stock("a"))
		require.Equal(t, 1, h.db.stock("b"))
		require.Zero(t, h.db.orderCount())
	})

	t.Run("store failure mid debit rolls back", func(t *testing.T) {
		h := newHarness(t)
		h.db.addProduct("a", "S1", "1.00", 10)
		h.db.addProduct("b", "S2", "1.00", 10)
		h.db.failAdjust["b"] = errors.New("connection reset")

		_, err := h.svc.CreateOrder(context.Background(), checkoutCmd("B", line("a", 4), line("b", 2)))
		require.ErrorIs(t, err, ErrStoreUnavailable)
		require.Equal(t, 10, h.db.stock("a"))
		require.Zero(t, h.db.orderCount())
		require.Empty(t, h.notes.all())
	})

	t.Run("unknown product", func(t *testing.T) {
		h := newHarness(t)
		h.db.addProduct("a", "S1", "1.00", 10)

		_, err := h.svc.CreateOrder(context.Background(), checkoutCmd("B", line("a", 1), line("ghost", 1)))
		require.ErrorIs(t, err, ErrNotFound)
		require.Equal(t, 10, h.db.stock("a"))
	})
}

func TestCreateOrderMergesRepeatedProducts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.db.addProduct("a", "S", "2.00", 5)

	_, err := h.svc.CreateOrder(context.Background(), checkoutCmd("B", line("a", 3), line("a", 3)))
	require.ErrorIs(t, err, ErrInsufficientStock)

	o, err := h.svc.CreateOrder(context.Background(), checkoutCmd("B", line("a", 2), line("a", 3)))
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	require.Equal(t, 5, o.Items[0].Quantity)
	require.Zero(t, h.db.stock("a"))
}

func TestCreateOrderNotifiesEachSellerOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.db.addProduct("a1", "S1", "1.00", 5)
	h.db.addProduct("a2", "S1", "1.00", 5)
	h.db.addProduct("b1", "S2", "1.00", 5)

	_, err := h.svc.CreateOrder(context.Background(), checkoutCmd("B", line("a1", 1), line("b1", 1), line("a2", 1)))
	require.NoError(t, err)

	var recipients []string
	for _, ev := range h.notes.all() {
		recipients = append(recipients, ev.RecipientID)
	}
	require.Equal(t, []string{"S1", "S2"}, recipients)
}

func TestCreateOrderValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		mut   func(*CreateOrderCommand)
		field string
	}{
		{"no lines", func(c *CreateOrderCommand) { c.Items = nil }, "items"},
		{"bad email", func(c *CreateOrderCommand) { c.Email = "not-an-email" }, "email"},
		{"bad phone", func(c *CreateOrderCommand) { c.Phone = "call me" }, "phone"},
		{"short phone", func(c *CreateOrderCommand) { c.Phone = "123" }, "phone"},
		{"zero quantity", func(c *CreateOrderCommand) { c.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"missing product", func(c *CreateOrderCommand) { c.Items[0].ProductID = "" }, "items[0].product_id"},
		{"missing buyer", func(c *CreateOrderCommand) { c.BuyerID = "" }, "buyer_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.db.addProduct("a", "S", "1.00", 5)
			cmd := checkoutCmd("B", line("a", 1))
			tc.mut(&cmd)

			_, err := h.svc.CreateOrder(context.Background(), cmd)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.ErrorIs(t, err, ErrValidation)
			require.Equal(t, tc.field, verr.Field)
			require.Equal(t, 5, h.db.stock("a"))
		})
	}
}

func TestCreateOrderIdempotencyKeyReplaysOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.db.addProduct("a", "S", "1.00", 5)
	cmd := checkoutCmd("B", line("a", 2))
	cmd.IdempotencyKey = "cart-42"

	first, err := h.svc.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	second, err := h.svc.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 3, h.db.stock("a"))
	require.Len(t, h.notes.all(), 1)

	// the durable record still answers once the fast path is gone
	h.idem.keys = nil
	third, err := h.svc.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, first.ID, third.ID)
	require.Equal(t, 3, h.db.stock("a"))
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.db.addProduct("hot", "S", "1.00", 10)

	const buyers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, short int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.CreateOrder(context.Background(), checkoutCmd("B", line("hot", 1)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, ok)
	require.Equal(t, buyers-10, short)
	require.Zero(t, h.db.stock("hot"))
	require.Equal(t, 10, h.db.orderCount())
}

func TestConcurrentAcceptFromTwoSellers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.mixedOrder(t)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, seller := range []string{"seller-a", "seller-b"} {
		i, seller := i, seller
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.svc.AcceptOrder(context.Background(), o.ID, seller)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrInvalidTransition)
	}
	require.Equal(t, 1, succeeded)

	got, err := h.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, got.Status)
	require.Len(t, h.notes.all(), 1)
}

func TestTransitionStatusFollowsTable(t *testing.T) {
	t.Parallel()

	statuses := []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}
	for _, from := range statuses {
		for _, to := range statuses {
			from, to := from, to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				t.Parallel()
				h := newHarness(t)
				o := h.mixedOrder(t)
				h.db.setStatus(o.ID, from)

				got, err := h.svc.TransitionStatus(context.Background(), o.ID, to, "seller-b")
				after, getErr := h.svc.GetOrder(context.Background(), o.ID)
				require.NoError(t, getErr)

				if Allows(from, to, RoleSeller) {
					require.NoError(t, err)
					require.Equal(t, to, got.Status)
					require.Equal(t, to, after.Status)
					return
				}
				var terr *TransitionError
				require.ErrorAs(t, err, &terr)
				require.Equal(t, from, terr.From)
				require.Equal(t, to, terr.To)
				require.Equal(t, from, after.Status)
				require.Empty(t, h.notes.all())
			})
		}
	}
}

func TestTransitionStatusRejectsUnknownTarget(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.mixedOrder(t)

	_, err := h.svc.TransitionStatus(context.Background(), o.ID, Status("LOST"), "seller-a")
	require.ErrorIs(t, err, ErrValidation)
}

func TestFulfilmentPathNotifiesBuyerEachStep(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.mixedOrder(t)
	ctx := context.Background()

	_, err := h.svc.AcceptOrder(ctx, o.ID, "seller-a")
	require.NoError(t, err)
	_, err = h.svc.TransitionStatus(ctx, o.ID, StatusShipped, "seller-b")
	require.NoError(t, err)
	done, err := h.svc.TransitionStatus(ctx, o.ID, StatusDelivered, "seller-a")
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, done.Status)
	require.True(t, done.Status.Terminal())

	var messages []string
	for _, ev := range h.notes.all() {
		require.Equal(t, "buyer", ev.RecipientID)
		messages = append(messages, ev.Message)
	}
	require.Equal(t, []string{"order is being processed", "order has shipped", "order delivered"}, messages)

	// delivered stock stays debited
	require.Equal(t, 3, h.db.stock("p1"))
	require.Equal(t, 5, h.db.stock("p2"))
}

func TestCancelFromProcessingBySellerRestoresStock(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.mixedOrder(t)

	_, err := h.svc.AcceptOrder(context.Background(), o.ID, "seller-a")
	require.NoError(t, err)
	_, err = h.svc.TransitionStatus(context.Background(), o.ID, StatusCancelled, "seller-b")
	require.NoError(t, err)

	require.Equal(t, 5, h.db.stock("p1"))
	require.Equal(t, 8, h.db.stock("p2"))
}

func TestCancelOrderByBuyer(t *testing.T) {
	t.Parallel()

	t.Run("pending order", func(t *testing.T) {
		h := newHarness(t)
		o := h.mixedOrder(t)

		got, err := h.svc.CancelOrder(context.Background(), o.ID, "buyer")
		require.NoError(t, err)
		require.Equal(t, StatusCancelled, got.Status)
		require.Equal(t, 5, h.db.stock("p1"))
		require.Equal(t, 8, h.db.stock("p2"))

		recipients := map[string]int{}
		for _, ev := range h.notes.all() {
			require.Equal(t, notify.TypeOrderStatusChanged, ev.Type)
			recipients[ev.RecipientID]++
		}
		require.Equal(t, map[string]int{"buyer": 1, "seller-a": 1, "seller-b": 1}, recipients)

		snap, ok := h.cache.lookup(o.ID)
		require.True(t, ok)
		require.Equal(t, StatusCancelled, snap.Status)
	})

	t.Run("not the buyer", func(t *testing.T) {
		h := newHarness(t)
		o := h.mixedOrder(t)

		_, err := h.svc.CancelOrder(context.Background(), o.ID, "seller-a")
		require.ErrorIs(t, err, ErrForbidden)
		require.Equal(t, 3, h.db.stock("p1"))
	})

	t.Run("already processing", func(t *testing.T) {
		h := newHarness(t)
		o := h.mixedOrder(t)
		_, err := h.svc.AcceptOrder(context.Background(), o.ID, "seller-a")
		require.NoError(t, err)

		_, err = h.svc.CancelOrder(context.Background(), o.ID, "buyer")
		var terr *TransitionError
		require.ErrorAs(t, err, &terr)
		require.Equal(t, StatusProcessing, terr.From)
		require.Equal(t, 3, h.db.stock("p1"))
	})

	t.Run("twice", func(t *testing.T) {
		h := newHarness(t)
		o := h.mixedOrder(t)
		_, err := h.svc.CancelOrder(context.Background(), o.ID, "buyer")
		require.NoError(t, err)

		_, err = h.svc.CancelOrder(context.Background(), o.ID, "buyer")
		require.ErrorIs(t, err, ErrInvalidTransition)
		require.Equal(t, 5, h.db.stock("p1"))
	})
}

func TestTransitionsByOutsidersAreForbidden(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.mixedOrder(t)
	ctx := context.Background()

	_, err := h.svc.AcceptOrder(ctx, o.ID, "stranger")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = h.svc.RejectOrder(ctx, o.ID, "buyer")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = h.svc.TransitionStatus(ctx, o.ID, StatusProcessing, "")
	require.ErrorIs(t, err, ErrForbidden)

	got, err := h.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Empty(t, h.notes.all())
	require.Equal(t, 3, h.db.stock("p1"))
}

func TestRejectRequiresPending(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.mixedOrder(t)
	_, err := h.svc.AcceptOrder(context.Background(), o.ID, "seller-a")
	require.NoError(t, err)

	_, err = h.svc.RejectOrder(context.Background(), o.ID, "seller-b")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Contains(t, err.Error(), "cannot reject")
}

func TestTransitionUnknownOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.svc.AcceptOrder(context.Background(), "missing", "seller-a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateItemQuantity(t *testing.T) {
	t.Parallel()

	t.Run("increase and decrease adjust stock and total", func(t *testing.T) {
		h := newHarness(t)
		o := h.mixedOrder(t)
		itemID := o.Items[0].ID

		got, err := h.svc.UpdateItemQuantity(context.Background(), UpdateItemCommand{
			OrderID: o.ID, ItemID: itemID, Quantity: 5, ActorID: "buyer",
		})
		require.NoError(t, err)
		require.Zero(t, h.db.stock("p1"))
		require.True(t, decimal.RequireFromString("63.50").Equal(got.TotalAmount))

		got, err = h.svc.UpdateItemQuantity(context.Background(), UpdateItemCommand{
			OrderID: o.ID, ItemID: itemID, Quantity: 1, ActorID: "buyer",
		})
		require.NoError(t, err)
		require.Equal(t, 4, h.db.stock("p1"))
		require.True(t, decimal.RequireFromString("23.50").Equal(got.TotalAmount))

		stored, err := h.svc.GetOrder(context.Background(), o.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stored.Items[0].Quantity)
		require.True(t, computeTotal(stored.Items).Equal(stored.TotalAmount))
		require.Empty(t, h.notes.all())
	})

	t.Run("increase beyond stock", func(t *testing.T) {
		h := newHarness(t)
		o := h.mixedOrder(t)

		_, err := h.svc.UpdateItemQuantity(context.Background(), UpdateItemCommand{
			OrderID: o.ID, ItemID: o.Items[0].ID, Quantity: 6, ActorID: "buyer",
		})
		var stockErr *StockError
		require.ErrorAs(t, err, &stockErr)
		require.Equal(t, "p1", stockErr.ProductID)
		require.Equal(t, 6, stockErr.Requested)
		require.Equal(t, 3, stockErr.Available)
		require.Equal(t, 3, h.db.stock("p1"))
	})

	t.Run("not pending", func(t *testing.T) {
		h := newHarness(t)
		o := h.mixedOrder(t)
		h.db.setStatus(o.ID, StatusProcessing)

		_, err := h.svc.UpdateItemQuantity(context.Background(), UpdateItemCommand{
			OrderID: o.ID, ItemID: o.Items[0].ID, Quantity: 1, ActorID: "buyer",
		})
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("seller may not edit", func(t *testing.T) {
		h := newHarness(t)
		o := h.mixedOrder(t)

		_, err := h.svc.UpdateItemQuantity(context.Background(), UpdateItemCommand{
			OrderID: o.ID, ItemID: o.Items[0].ID, Quantity: 1, ActorID: "seller-a",
		})
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("invalid quantity and unknown item", func(t *testing.T) {
		h := newHarness(t)
		o := h.mixedOrder(t)

		_, err := h.svc.UpdateItemQuantity(context.Background(), UpdateItemCommand{
			OrderID: o.ID, ItemID: o.Items[0].ID, Quantity: 0, ActorID: "buyer",
		})
		require.ErrorIs(t, err, ErrValidation)

		_, err = h.svc.UpdateItemQuantity(context.Background(), UpdateItemCommand{
			OrderID: o.ID, ItemID: "nope", Quantity: 1, ActorID: "buyer",
		})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteItem(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.mixedOrder(t)
	ctx := context.Background()

	res, err := h.svc.DeleteItem(ctx, DeleteItemCommand{OrderID: o.ID, ItemID: o.Items[1].ID, ActorID: "buyer"})
	require.NoError(t, err)
	require.False(t, res.OrderDeleted)
	require.Len(t, res.Order.Items, 1)
	require.True(t, decimal.RequireFromString("20.00").Equal(res.Order.TotalAmount))
	require.Equal(t, 8, h.db.stock("p2"))

	// seller-b has no line left, on either path
	_, err = h.svc.AcceptOrder(ctx, o.ID, "seller-b")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = h.svc.OrderStatus(ctx, o.ID, "seller-b")
	require.ErrorIs(t, err, ErrForbidden)
	snap, ok := h.cache.lookup(o.ID)
	require.True(t, ok)
	require.Equal(t, []string{"seller-a"}, snap.SellerIDs)

	res, err = h.svc.DeleteItem(ctx, DeleteItemCommand{OrderID: o.ID, ItemID: o.Items[0].ID, ActorID: "buyer"})
	require.NoError(t, err)
	require.True(t, res.OrderDeleted)
	require.Empty(t, res.Order.Items)
	require.Equal(t, 5, h.db.stock("p1"))

	_, err = h.svc.GetOrder(ctx, o.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, cached := h.cache.lookup(o.ID)
	require.False(t, cached)
}

func TestListOrdersBySellerMembership(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	mixed := h.mixedOrder(t)
	h.db.addProduct("p3", "seller-c", "1.00", 5)
	solo, err := h.svc.CreateOrder(context.Background(), checkoutCmd("buyer", line("p3", 1)))
	require.NoError(t, err)

	a, err := h.svc.ListOrdersForSeller(context.Background(), "seller-a")
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Equal(t, mixed.ID, a[0].ID)

	b, err := h.svc.ListOrdersForSeller(context.Background(), "seller-b")
	require.NoError(t, err)
	require.Len(t, b, 1)
	require.Equal(t, mixed.ID, b[0].ID)

	mine, err := h.svc.ListOrdersForBuyer(context.Background(), "buyer")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, solo.ID, mine[0].ID)

	_, err = h.svc.ListOrdersForSeller(context.Background(), "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestOrderStatusUsesCacheAndChecksParticipant(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.mixedOrder(t)
	ctx := context.Background()

	snap, err := h.svc.OrderStatus(ctx, o.ID, "seller-b")
	require.NoError(t, err)
	require.Equal(t, StatusPending, snap.Status)

	_, err = h.svc.OrderStatus(ctx, o.ID, "stranger")
	require.ErrorIs(t, err, ErrForbidden)

	// a cold cache falls back to the store and refills
	h.cache.drop(o.ID)
	snap, err = h.svc.OrderStatus(ctx, o.ID, "buyer")
	require.NoError(t, err)
	require.Equal(t, []string{"seller-a", "seller-b"}, snap.SellerIDs)
	_, ok := h.cache.lookup(o.ID)
	require.True(t, ok)

	_, err = h.svc.OrderStatus(ctx, "missing", "buyer")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLateStatusWriteDoesNotRollBackCache(t *testing.T) {
	t.Parallel()
	var hc *holdingCache
	h := newHarnessWithCache(t, func(c *memCache) StatusCache {
		hc = &holdingCache{memCache: c, status: StatusProcessing, held: make(chan struct{}), release: make(chan struct{})}
		return hc
	})
	o := h.mixedOrder(t)
	ctx := context.Background()

	accepted := make(chan error, 1)
	go func() {
		_, err := h.svc.AcceptOrder(ctx, o.ID, "seller-a")
		accepted <- err
	}()
	<-hc.held // accept committed, its cache write is parked

	_, err := h.svc.TransitionStatus(ctx, o.ID, StatusShipped, "seller-b")
	require.NoError(t, err)
	close(hc.release)
	require.NoError(t, <-accepted)

	snap, ok := h.cache.lookup(o.ID)
	require.True(t, ok)
	require.Equal(t, StatusShipped, snap.Status)
	snap, err = h.svc.OrderStatus(ctx, o.ID, "buyer")
	require.NoError(t, err)
	require.Equal(t, StatusShipped, snap.Status)
}

func TestUpdateItemQuantityRefreshesStamp(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.mixedOrder(t)

	got, err := h.svc.UpdateItemQuantity(context.Background(), UpdateItemCommand{
		OrderID: o.ID, ItemID: o.Items[0].ID, Quantity: 1, ActorID: "buyer",
	})
	require.NoError(t, err)
	require.True(t, got.UpdatedAt.After(o.UpdatedAt))
	_, ok := h.cache.lookup(o.ID)
	require.True(t, ok)
}

func TestStoreFailuresSurfaceAsUnavailable(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.mixedOrder(t)

	h.db.failNext = errors.New("conn closed")
	_, err := h.svc.AcceptOrder(context.Background(), o.ID, "seller-a")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.NotErrorIs(t, err, ErrNotFound)
	require.Empty(t, h.notes.all())

	got, err := h.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}
