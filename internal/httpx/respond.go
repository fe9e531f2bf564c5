package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-orders/internal/identity"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message, RequestID: middleware.GetReqID(r.Context())})
}

// writeError maps the domain taxonomy onto HTTP. Infrastructure failures are
// logged and answered without internals.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	body := errorBody{Message: err.Error(), RequestID: middleware.GetReqID(r.Context())}
	status := http.StatusInternalServerError

	var (
		stockErr      *orders.StockError
		validationErr *orders.ValidationError
		transitionErr *orders.TransitionError
	)
	switch {
	case errors.As(err, &stockErr):
		status, body.Error = http.StatusConflict, "insufficient_stock"
		body.Details = map[string]any{
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		}
	case errors.As(err, &validationErr):
		status, body.Error = http.StatusBadRequest, "validation_failed"
		if validationErr.Field != "" {
			body.Details = map[string]any{"field": validationErr.Field}
		}
	case errors.As(err, &transitionErr):
		status, body.Error = http.StatusConflict, "invalid_transition"
		body.Details = map[string]any{"from": transitionErr.From, "to": transitionErr.To}
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, notify.ErrNotFound):
		status, body.Error = http.StatusNotFound, "not_found"
	case errors.Is(err, orders.ErrForbidden):
		status, body.Error = http.StatusForbidden, "forbidden"
	case errors.Is(err, orders.ErrSelfPurchase):
		status, body.Error = http.StatusUnprocessableEntity, "self_purchase_forbidden"
	case errors.Is(err, orders.ErrInvalidTransition):
		status, body.Error = http.StatusConflict, "invalid_transition"
	case errors.Is(err, orders.ErrInsufficientStock):
		status, body.Error = http.StatusConflict, "insufficient_stock"
	case errors.Is(err, orders.ErrValidation):
		status, body.Error = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, identity.ErrUnauthenticated):
		status, body.Error = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, orders.ErrStoreUnavailable):
		status, body.Error = http.StatusServiceUnavailable, "store_unavailable"
		body.Message = "service temporarily unavailable, retry later"
	default:
		body.Error = "internal"
		body.Message = "internal error"
	}

	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", body.RequestID),
			zap.Int("status", status),
		)
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "invalid json"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeProblem(w, r, http.StatusBadRequest, "invalid_json", msg)
		return false
	}
	return true
}

// currentUser returns the authenticated user or answers 401.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, ok := identity.UserID(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
	}
	return uid, ok
}
