package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

const idempotencyHeader = "Idempotency-Key"

// OrderService is the engine surface the HTTP layer drives.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd orders.CreateOrderCommand) (orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	OrderStatus(ctx context.Context, orderID, actorID string) (orders.StatusSnapshot, error)
	ListOrdersForBuyer(ctx context.Context, buyerID string) ([]orders.Order, error)
	ListOrdersForSeller(ctx context.Context, sellerID string) ([]orders.Order, error)
	UpdateItemQuantity(ctx context.Context, cmd orders.UpdateItemCommand) (orders.Order, error)
	DeleteItem(ctx context.Context, cmd orders.DeleteItemCommand) (orders.ItemRemoval, error)
	CancelOrder(ctx context.Context, orderID, actingBuyerID string) (orders.Order, error)
	AcceptOrder(ctx context.Context, orderID, actingSellerID string) (orders.Order, error)
	RejectOrder(ctx context.Context, orderID, actingSellerID string) (orders.Order, error)
	TransitionStatus(ctx context.Context, orderID string, target orders.Status, actingSellerID string) (orders.Order, error)
}

type OrdersHandler struct {
	Service OrderService
	Logger  *zap.Logger
}

type CreateOrderReq struct {
	Email string             `json:"email"`
	Phone string             `json:"phone"`
	Items []orders.LineInput `json:"items"`
}

type UpdateItemReq struct {
	Quantity int `json:"quantity"`
}

type TransitionReq struct {
	Status string `json:"status"`
}

type StatusResp struct {
	OrderID string        `json:"order_id"`
	Status  orders.Status `json:"status"`
}

// Register mounts the order routes. r must already authenticate the caller.
func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Patch("/orders/{id}/items/{itemID}", h.updateItem)
	r.Delete("/orders/{id}/items/{itemID}", h.deleteItem)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/accept", h.accept)
	r.Post("/orders/{id}/reject", h.reject)
	r.Post("/orders/{id}/status", h.transition)
	r.Get("/me/orders", h.listMine)
	r.Get("/seller/orders", h.listSeller)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req CreateOrderReq
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.Service.CreateOrder(r.Context(), orders.CreateOrderCommand{
		BuyerID:        uid,
		Email:          req.Email,
		Phone:          req.Phone,
		Items:          req.Items,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
	})
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	w.Header().Set("Location", "/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	o, err := h.Service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if !o.IsParticipant(uid) {
		writeError(w, r, h.Logger, orders.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	snap, err := h.Service.OrderStatus(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResp{OrderID: snap.OrderID, Status: snap.Status})
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	out, err := h.Service.ListOrdersForBuyer(r.Context(), uid)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listSeller(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	out, err := h.Service.ListOrdersForSeller(r.Context(), uid)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req UpdateItemReq
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.Service.UpdateItemQuantity(r.Context(), orders.UpdateItemCommand{
		OrderID:  chi.URLParam(r, "id"),
		ItemID:   chi.URLParam(r, "itemID"),
		Quantity: req.Quantity,
		ActorID:  uid,
	})
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := h.Service.DeleteItem(r.Context(), orders.DeleteItemCommand{
		OrderID: chi.URLParam(r, "id"),
		ItemID:  chi.URLParam(r, "itemID"),
		ActorID: uid,
	})
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.CancelOrder)
}

func (h *OrdersHandler) accept(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.AcceptOrder)
}

func (h *OrdersHandler) reject(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.RejectOrder)
}

func (h *OrdersHandler) act(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, orderID, actorID string) (orders.Order, error)) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	o, err := op(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req TransitionReq
	if !decodeJSON(w, r, &req) {
		return
	}
	target, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	o, err := h.Service.TransitionStatus(r.Context(), chi.URLParam(r, "id"), target, uid)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
