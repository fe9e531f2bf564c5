package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// The entry is a hash: v holds the version, d the JSON snapshot. A
// tombstone has only v.
var (
	putStatus = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'd', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)
	buryStatus = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'v', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)
)

// StatusCache stores versioned JSON status snapshots per order. Postgres
// stays the source of truth; a miss is never an error.
type StatusCache struct {
	Client redis.Cmdable
}

func (c *StatusCache) Get(ctx context.Context, orderID string, dst any) (bool, error) {
	b, err := c.Client.HGet(ctx, fmt.Sprintf(KeyOrderStatus, orderID), "d").Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode cached status %s: %w", orderID, err)
	}
	return true, nil
}

// Put stores v unless the entry already holds a newer version, so a late
// writer never rolls the status back.
func (c *StatusCache) Put(ctx context.Context, orderID string, version int64, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return putStatus.Run(ctx, c.Client, []string{fmt.Sprintf(KeyOrderStatus, orderID)},
		version, b, TTLStatusCache.Milliseconds()).Err()
}

// Evict leaves a tombstone at version: reads miss and older Puts are ignored
// until the TTL runs out.
func (c *StatusCache) Evict(ctx context.Context, orderID string, version int64) error {
	return buryStatus.Run(ctx, c.Client, []string{fmt.Sprintf(KeyOrderStatus, orderID)},
		version, TTLStatusCache.Milliseconds()).Err()
}
