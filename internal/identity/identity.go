package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthenticated signals a missing, malformed, expired or forged token.
	ErrUnauthenticated = errors.New("identity: unauthenticated")
	// ErrTokenExpired is the expired-token flavour of ErrUnauthenticated.
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrUnauthenticated)
)

// Resolver turns an opaque bearer token into a user id.
type Resolver interface {
	ResolveUser(ctx context.Context, token string) (string, error)
}

// JWTResolver validates HS256 tokens issued by the marketplace auth service.
// The subject claim is the user id.
type JWTResolver struct {
	secret []byte
	parser *jwt.Parser
}

type Option func(*resolverOptions)

type resolverOptions struct {
	issuer string
	now    func() time.Time
	leeway time.Duration
}

// WithIssuer requires the iss claim to match.
func WithIssuer(iss string) Option {
	return func(o *resolverOptions) { o.issuer = strings.TrimSpace(iss) }
}

func WithClock(now func() time.Time) Option {
	return func(o *resolverOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLeeway(d time.Duration) Option {
	return func(o *resolverOptions) {
		if d > 0 {
			o.leeway = d
		}
	}
}

func NewJWTResolver(secret string, opts ...Option) (*JWTResolver, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("identity: signing secret is required")
	}
	o := resolverOptions{now: time.Now, leeway: 30 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(o.leeway),
		jwt.WithTimeFunc(o.now),
	}
	if o.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(o.issuer))
	}
	return &JWTResolver{secret: []byte(secret), parser: jwt.NewParser(parserOpts...)}, nil
}

func (r *JWTResolver) ResolveUser(_ context.Context, token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := r.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return sub, nil
}

type contextKey string

const userIDContextKey contextKey = "github.com/ariefcatur/go-marketplace-orders/internal/identity/user"

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserID returns the authenticated user stored by the middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey).(string)
	return id, ok && id != ""
}
