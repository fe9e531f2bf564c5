package identity

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// RequireUser resolves the Authorization bearer token and stores the user id
// in the request context. Requests without a valid token get 401.
func RequireUser(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, r, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if resolver == nil {
				respondAuthError(w, r, "unauthenticated", "authorization service unavailable")
				return
			}

			userID, err := resolver.ResolveUser(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					respondAuthError(w, r, "token_expired", "bearer token expired")
					return
				}
				respondAuthError(w, r, "unauthenticated", "bearer token invalid")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, r *http.Request, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      code,
		"message":    message,
		"request_id": middleware.GetReqID(r.Context()),
	})
}
