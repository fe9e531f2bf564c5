package orders

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
)

const tracerName = "github.com/ariefcatur/go-marketplace-orders/internal/orders"

const orderReceivedMessage = "new order received"

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,18}[0-9]$`)

// ServiceDeps bundles collaborators required to construct the engine.
type ServiceDeps struct {
	Orders      Store
	Catalog     Catalog
	UnitOfWork  UnitOfWork
	Notifier    Notifier
	StatusCache StatusCache
	Idempotency IdempotencyIndex
	Logger      *zap.Logger
	Tracer      trace.Tracer
	Clock       func() time.Time
	IDGenerator func() string
}

// Service is the order lifecycle engine: checkout, line edits, the status
// state machine and the stock movements tied to them.
type Service struct {
	orders   Store
	catalog  Catalog
	uow      UnitOfWork
	notifier Notifier
	cache    StatusCache
	idem     IdempotencyIndex
	logger   *zap.Logger
	tracer   trace.Tracer
	clock    func() time.Time
	newID    func() string
	validate *validator.Validate
}

func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order store is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("order service: unit of work is required")
	}

	s := &Service{
		orders:   deps.Orders,
		catalog:  deps.Catalog,
		uow:      deps.UnitOfWork,
		notifier: deps.Notifier,
		cache:    deps.StatusCache,
		idem:     deps.Idempotency,
		logger:   deps.Logger,
		tracer:   deps.Tracer,
		clock:    deps.Clock,
		newID:    deps.IDGenerator,
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return ulid.Make().String() }
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("order service: register phone validation: %w", err)
	}
	s.validate = v
	return s, nil
}

func (s *Service) now() time.Time { return s.clock().UTC().Truncate(time.Microsecond) }

// touch stamps o with the current time, kept strictly after its previous
// stamp so status cache versions never repeat or go back.
func (s *Service) touch(o *Order) {
	now := s.now()
	if !now.After(o.UpdatedAt) {
		now = o.UpdatedAt.Add(time.Microsecond)
	}
	o.UpdatedAt = now
}

// CreateOrder checks out a cart snapshot. Every line is validated before
// anything is written; the order insert and every stock debit commit
// together or not at all. Sellers are notified after the commit.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (o Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.String("actor.id", cmd.BuyerID),
		attribute.Int("order.lines", len(cmd.Items)),
	))
	defer func() { endSpan(span, err) }()

	if err := s.validateCommand(cmd); err != nil {
		return Order{}, err
	}
	lines := mergeLines(cmd.Items)

	if cmd.IdempotencyKey != "" {
		if existing, ok, err := s.replay(ctx, cmd.BuyerID, cmd.IdempotencyKey); err != nil {
			return Order{}, s.fail(ctx, "create order", err)
		} else if ok {
			span.SetAttributes(attribute.Bool("order.replayed", true))
			return existing, nil
		}
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		created, err := s.checkout(ctx, cmd, lines)
		if err != nil {
			return err
		}
		o = created
		return nil
	})
	if errors.Is(err, errDuplicateExternalID) {
		// lost the race against a concurrent replay of the same key
		existing, findErr := s.orders.FindByExternalID(ctx, cmd.BuyerID, cmd.IdempotencyKey)
		if findErr != nil {
			return Order{}, s.fail(ctx, "create order", findErr)
		}
		return existing, nil
	}
	if err != nil {
		return Order{}, s.fail(ctx, "create order", err)
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	if cmd.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.Remember(ctx, cmd.BuyerID, cmd.IdempotencyKey, o.ID); err != nil {
			s.logger.Warn("idempotency index write failed", zap.Error(err), zap.String("order_id", o.ID))
		}
	}
	s.cacheStatus(ctx, o)

	for _, sellerID := range o.SellerIDs() {
		s.notifier.Emit(ctx, notify.Event{
			RecipientID:   sellerID,
			Type:          notify.TypeOrderReceived,
			OrderID:       o.ID,
			RelatedUserID: o.BuyerID,
			Message:       orderReceivedMessage,
		})
	}

	s.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("buyer_id", o.BuyerID),
		zap.Int("lines", len(o.Items)),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)
	return o, nil
}

// replay returns the order a previous checkout with the same key produced.
func (s *Service) replay(ctx context.Context, buyerID, key string) (Order, bool, error) {
	if s.idem != nil {
		orderID, ok, err := s.idem.Lookup(ctx, buyerID, key)
		if err != nil {
			s.logger.Warn("idempotency index read failed", zap.Error(err))
		} else if ok {
			o, err := s.orders.GetOrder(ctx, orderID)
			if err == nil && o.BuyerID == buyerID {
				return o, true, nil
			}
		}
	}

	o, err := s.orders.FindByExternalID(ctx, buyerID, key)
	if errors.Is(err, ErrNotFound) {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, err
	}
	return o, true, nil
}

func (s *Service) checkout(ctx context.Context, cmd CreateOrderCommand, lines []LineInput) (Order, error) {
	// lock-ordered by product id so concurrent multi-line checkouts cannot deadlock
	byProduct := slices.Clone(lines)
	slices.SortFunc(byProduct, func(a, b LineInput) int { return strings.Compare(a.ProductID, b.ProductID) })

	products := make(map[string]catalog.Product, len(lines))
	for _, l := range byProduct {
		p, err := s.catalog.GetProduct(ctx, l.ProductID)
		if err != nil {
			return Order{}, err
		}
		if p.SellerID == cmd.BuyerID {
			return Order{}, fmt.Errorf("%w: product %s", ErrSelfPurchase, p.ID)
		}
		products[p.ID] = p
	}
	for _, l := range byProduct {
		if p := products[l.ProductID]; p.Stock < l.Quantity {
			return Order{}, &StockError{ProductID: p.ID, Requested: l.Quantity, Available: p.Stock}
		}
	}

	now := s.now()
	o := Order{
		ID:           s.newID(),
		ExternalID:   cmd.IdempotencyKey,
		BuyerID:      cmd.BuyerID,
		ContactEmail: strings.TrimSpace(cmd.Email),
		ContactPhone: strings.TrimSpace(cmd.Phone),
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, l := range lines {
		p := products[l.ProductID]
		o.Items = append(o.Items, OrderItem{
			ID:          s.newID(),
			OrderID:     o.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.UnitPrice,
			SellerID:    p.SellerID,
			Quantity:    l.Quantity,
		})
	}
	o.TotalAmount = computeTotal(o.Items)

	if err := s.orders.InsertOrder(ctx, o); err != nil {
		return Order{}, err
	}
	for _, l := range byProduct {
		if _, err := s.catalog.AdjustStock(ctx, l.ProductID, -l.Quantity); err != nil {
			return Order{}, err
		}
	}
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (o Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.GetOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { endSpan(span, err) }()

	o, err = s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, s.fail(ctx, "get order", err)
	}
	return o, nil
}

// OrderStatus answers a status read for one of the order's participants,
// from the cache when possible.
func (s *Service) OrderStatus(ctx context.Context, orderID, actorID string) (snap StatusSnapshot, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.OrderStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("actor.id", actorID),
	))
	defer func() { endSpan(span, err) }()

	hit := false
	if s.cache != nil {
		ok, err := s.cache.Get(ctx, orderID, &snap)
		if err != nil {
			s.logger.Warn("status cache read failed", zap.Error(err), zap.String("order_id", orderID))
		}
		hit = ok && err == nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))

	if !hit {
		o, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return StatusSnapshot{}, s.fail(ctx, "order status", err)
		}
		snap = snapshotOf(o)
		s.cacheStatus(ctx, o)
	}

	if actorID == "" || (snap.BuyerID != actorID && !slices.Contains(snap.SellerIDs, actorID)) {
		return StatusSnapshot{}, ErrForbidden
	}
	return snap, nil
}

func (s *Service) ListOrdersForBuyer(ctx context.Context, buyerID string) (out []Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.ListOrdersForBuyer", trace.WithAttributes(attribute.String("actor.id", buyerID)))
	defer func() { endSpan(span, err) }()

	if buyerID == "" {
		return nil, &ValidationError{Field: "buyer_id", Reason: "is required"}
	}
	out, err = s.orders.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, s.fail(ctx, "list buyer orders", err)
	}
	return out, nil
}

// ListOrdersForSeller returns every order with at least one line sold by
// sellerID. Mixed-seller orders appear in each of their sellers' views.
func (s *Service) ListOrdersForSeller(ctx context.Context, sellerID string) (out []Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.ListOrdersForSeller", trace.WithAttributes(attribute.String("actor.id", sellerID)))
	defer func() { endSpan(span, err) }()

	if sellerID == "" {
		return nil, &ValidationError{Field: "seller_id", Reason: "is required"}
	}
	out, err = s.orders.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, s.fail(ctx, "list seller orders", err)
	}
	return out, nil
}

// UpdateItemQuantity sets one line's quantity on a Pending order. An increase
// debits the difference and must fit the current stock; a decrease credits it.
func (s *Service) UpdateItemQuantity(ctx context.Context, cmd UpdateItemCommand) (o Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.UpdateItemQuantity", trace.WithAttributes(
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.item_id", cmd.ItemID),
		attribute.String("actor.id", cmd.ActorID),
	))
	defer func() { endSpan(span, err) }()

	if cmd.Quantity < 1 {
		return Order{}, &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		locked, it, idx, err := s.lockForEdit(ctx, cmd.OrderID, cmd.ItemID, cmd.ActorID)
		if err != nil {
			return err
		}
		if delta := cmd.Quantity - it.Quantity; delta != 0 {
			if _, err := s.catalog.AdjustStock(ctx, it.ProductID, -delta); err != nil {
				var short *catalog.ShortfallError
				if errors.As(err, &short) {
					return &StockError{ProductID: it.ProductID, Requested: cmd.Quantity, Available: short.Available}
				}
				return err
			}
		}
		if err := s.orders.UpdateItemQuantity(ctx, locked.ID, it.ID, cmd.Quantity); err != nil {
			return err
		}

		locked.Items[idx].Quantity = cmd.Quantity
		locked.TotalAmount = computeTotal(locked.Items)
		s.touch(&locked)
		if err := s.orders.UpdateOrder(ctx, locked); err != nil {
			return err
		}
		o = locked
		return nil
	})
	if err != nil {
		return Order{}, s.fail(ctx, "update item quantity", err)
	}
	s.cacheStatus(ctx, o)

	s.logger.Info("order line updated",
		zap.String("order_id", o.ID),
		zap.String("item_id", cmd.ItemID),
		zap.Int("quantity", cmd.Quantity),
	)
	return o, nil
}

// DeleteItem removes one line from a Pending order and credits its stock.
// Removing the last line deletes the order.
func (s *Service) DeleteItem(ctx context.Context, cmd DeleteItemCommand) (res ItemRemoval, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.DeleteItem", trace.WithAttributes(
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.item_id", cmd.ItemID),
		attribute.String("actor.id", cmd.ActorID),
	))
	defer func() { endSpan(span, err) }()

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		locked, it, idx, err := s.lockForEdit(ctx, cmd.OrderID, cmd.ItemID, cmd.ActorID)
		if err != nil {
			return err
		}
		if _, err := s.catalog.AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
			return err
		}

		locked.Items = slices.Delete(locked.Items, idx, idx+1)
		locked.TotalAmount = computeTotal(locked.Items)
		s.touch(&locked)

		if len(locked.Items) == 0 {
			if err := s.orders.DeleteOrder(ctx, locked.ID); err != nil {
				return err
			}
			res = ItemRemoval{Order: locked, OrderDeleted: true}
			return nil
		}
		if err := s.orders.DeleteItem(ctx, locked.ID, it.ID); err != nil {
			return err
		}
		if err := s.orders.UpdateOrder(ctx, locked); err != nil {
			return err
		}
		res = ItemRemoval{Order: locked}
		return nil
	})
	if err != nil {
		return ItemRemoval{}, s.fail(ctx, "delete item", err)
	}

	// the seller set may have shrunk
	if res.OrderDeleted {
		s.evictStatus(ctx, res.Order)
	} else {
		s.cacheStatus(ctx, res.Order)
	}
	span.SetAttributes(attribute.Bool("order.deleted", res.OrderDeleted))
	s.logger.Info("order line removed",
		zap.String("order_id", res.Order.ID),
		zap.String("item_id", cmd.ItemID),
		zap.Bool("order_deleted", res.OrderDeleted),
	)
	return res, nil
}

// lockForEdit loads the order under lock and checks that actorID, the buyer,
// may still edit its lines.
func (s *Service) lockForEdit(ctx context.Context, orderID, itemID, actorID string) (Order, OrderItem, int, error) {
	o, err := s.orders.LockOrder(ctx, orderID)
	if err != nil {
		return Order{}, OrderItem{}, -1, err
	}
	if actorID == "" || o.BuyerID != actorID {
		return Order{}, OrderItem{}, -1, fmt.Errorf("%w: only the buyer may edit order lines", ErrForbidden)
	}
	if o.Status != StatusPending {
		return Order{}, OrderItem{}, -1, &TransitionError{From: o.Status, To: o.Status, Action: "edit items"}
	}
	it, idx, ok := o.item(itemID)
	if !ok {
		return Order{}, OrderItem{}, -1, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	return o, it, idx, nil
}

// CancelOrder is the buyer withdrawing a Pending order.
func (s *Service) CancelOrder(ctx context.Context, orderID, actingBuyerID string) (Order, error) {
	return s.transition(ctx, transitionRequest{
		span:        "orders.CancelOrder",
		orderID:     orderID,
		actorID:     actingBuyerID,
		role:        RoleBuyer,
		to:          StatusCancelled,
		requireFrom: StatusPending,
		action:      "cancel",
	})
}

// AcceptOrder moves a Pending order to Processing on behalf of one of its sellers.
func (s *Service) AcceptOrder(ctx context.Context, orderID, actingSellerID string) (Order, error) {
	return s.transition(ctx, transitionRequest{
		span:        "orders.AcceptOrder",
		orderID:     orderID,
		actorID:     actingSellerID,
		role:        RoleSeller,
		to:          StatusProcessing,
		requireFrom: StatusPending,
		action:      "accept",
	})
}

// RejectOrder cancels a Pending order on behalf of one of its sellers.
func (s *Service) RejectOrder(ctx context.Context, orderID, actingSellerID string) (Order, error) {
	return s.transition(ctx, transitionRequest{
		span:        "orders.RejectOrder",
		orderID:     orderID,
		actorID:     actingSellerID,
		role:        RoleSeller,
		to:          StatusCancelled,
		requireFrom: StatusPending,
		action:      "reject",
	})
}

// TransitionStatus applies any seller move permitted by the status table.
func (s *Service) TransitionStatus(ctx context.Context, orderID string, target Status, actingSellerID string) (Order, error) {
	if !target.Valid() {
		return Order{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", target)}
	}
	return s.transition(ctx, transitionRequest{
		span:    "orders.TransitionStatus",
		orderID: orderID,
		actorID: actingSellerID,
		role:    RoleSeller,
		to:      target,
	})
}

type transitionRequest struct {
	span        string
	orderID     string
	actorID     string
	role        Role
	to          Status
	requireFrom Status
	action      string
}

func (s *Service) transition(ctx context.Context, req transitionRequest) (o Order, err error) {
	ctx, span := s.tracer.Start(ctx, req.span, trace.WithAttributes(
		attribute.String("order.id", req.orderID),
		attribute.String("actor.id", req.actorID),
		attribute.String("actor.role", req.role.String()),
		attribute.String("order.status.to", string(req.to)),
	))
	defer func() { endSpan(span, err) }()

	var from Status
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		locked, err := s.orders.LockOrder(ctx, req.orderID)
		if err != nil {
			return err
		}
		if !authorized(locked, req.actorID, req.role) {
			return fmt.Errorf("%w: %s %s may not change order %s", ErrForbidden, req.role, req.actorID, locked.ID)
		}
		if req.requireFrom != "" && locked.Status != req.requireFrom {
			return &TransitionError{From: locked.Status, To: req.to, Action: req.action}
		}
		if !Allows(locked.Status, req.to, req.role) {
			return &TransitionError{From: locked.Status, To: req.to}
		}

		if req.to == StatusCancelled {
			if err := s.restoreStock(ctx, locked.Items); err != nil {
				return err
			}
		}

		from = locked.Status
		locked.Status = req.to
		s.touch(&locked)
		if err := s.orders.UpdateOrder(ctx, locked); err != nil {
			return err
		}
		o = locked
		return nil
	})
	if err != nil {
		return Order{}, s.fail(ctx, "transition order", err)
	}
	span.SetAttributes(attribute.String("order.status.from", string(from)))

	s.cacheStatus(ctx, o)
	s.notifyTransition(ctx, o, req)

	s.logger.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
		zap.String("actor_id", req.actorID),
		zap.Stringer("role", req.role),
	)
	return o, nil
}

func authorized(o Order, actorID string, role Role) bool {
	switch role {
	case RoleBuyer:
		return actorID != "" && o.BuyerID == actorID
	case RoleSeller:
		return o.HasSeller(actorID)
	default:
		return false
	}
}

// restoreStock credits back every line, in product order.
func (s *Service) restoreStock(ctx context.Context, items []OrderItem) error {
	credits := make(map[string]int, len(items))
	for _, it := range items {
		credits[it.ProductID] += it.Quantity
	}
	ids := make([]string, 0, len(credits))
	for id := range credits {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if _, err := s.catalog.AdjustStock(ctx, id, credits[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) notifyTransition(ctx context.Context, o Order, req transitionRequest) {
	s.notifier.Emit(ctx, notify.Event{
		RecipientID:   o.BuyerID,
		Type:          notify.TypeOrderStatusChanged,
		OrderID:       o.ID,
		RelatedUserID: req.actorID,
		Message:       StatusMessage(o.Status),
	})
	if req.role != RoleBuyer || o.Status != StatusCancelled {
		return
	}
	for _, sellerID := range o.SellerIDs() {
		s.notifier.Emit(ctx, notify.Event{
			RecipientID:   sellerID,
			Type:          notify.TypeOrderStatusChanged,
			OrderID:       o.ID,
			RelatedUserID: o.BuyerID,
			Message:       "order cancelled by buyer",
		})
	}
}

func (s *Service) cacheStatus(ctx context.Context, o Order) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, o.ID, statusVersion(o), snapshotOf(o)); err != nil {
		s.logger.Warn("status cache write failed", zap.Error(err), zap.String("order_id", o.ID))
	}
}

func (s *Service) evictStatus(ctx context.Context, o Order) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Evict(ctx, o.ID, statusVersion(o)); err != nil {
		s.logger.Warn("status cache evict failed", zap.Error(err), zap.String("order_id", o.ID))
	}
}

func (s *Service) validateCommand(cmd CreateOrderCommand) error {
	err := s.validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "CreateOrderCommand.")
	return &ValidationError{Field: field, Reason: validationReason(fe)}
}

func validationReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "is not a valid email address"
	case "phone":
		return "is not a valid phone number"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " line"
		}
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// fail maps err onto the caller-facing taxonomy. Anything outside it is an
// infrastructure failure and surfaces as ErrStoreUnavailable.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	var short *catalog.ShortfallError
	switch {
	case errors.As(err, &short):
		return &StockError{ProductID: short.ProductID, Requested: short.Requested, Available: short.Available}
	case errors.Is(err, catalog.ErrProductNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case IsDomainError(err):
		return err
	}

	s.logger.Error(op+" failed", zap.Error(err))
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
