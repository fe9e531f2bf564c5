package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// IdempotencyIndex is the fast path for checkout replays. The unique
// (buyer_id, external_id) constraint in Postgres is authoritative.
type IdempotencyIndex struct {
	Client redis.Cmdable
}

func (i *IdempotencyIndex) Lookup(ctx context.Context, buyerID, key string) (string, bool, error) {
	id, err := i.Client.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, buyerID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (i *IdempotencyIndex) Remember(ctx context.Context, buyerID, key, orderID string) error {
	return i.Client.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, buyerID, key), orderID, TTLIdempotency).Err()
}
