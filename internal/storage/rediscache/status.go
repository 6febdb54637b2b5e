// Package rediscache provides a short-TTL cache for order status lookups.
// The cache is best-effort: misses and errors fall through to PostgreSQL.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyOrderStatus = "order_status:%s"
	statusTTL      = 5 * time.Minute
)

// OrderStatus is the cached view of an order's state.
type OrderStatus struct {
	OwnerID       string    `json:"owner_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusCache caches order status snapshots in Redis.
type StatusCache struct {
	rdb *redis.Client
}

// New creates a StatusCache against the given Redis address.
func New(addr string) *StatusCache {
	return &StatusCache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// Get returns the cached status, or ok=false on miss or error.
func (c *StatusCache) Get(ctx context.Context, orderID string) (*OrderStatus, bool) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(keyOrderStatus, orderID)).Bytes()
	if err != nil {
		return nil, false
	}
	var s OrderStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// Set stores the status snapshot with a short TTL. Failures are ignored;
// the database remains the source of truth.
func (c *StatusCache) Set(ctx context.Context, orderID string, s OrderStatus) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, fmt.Sprintf(keyOrderStatus, orderID), raw, statusTTL).Err()
}

// Invalidate drops the cached snapshot, used after state transitions.
func (c *StatusCache) Invalidate(ctx context.Context, orderID string) {
	_ = c.rdb.Del(ctx, fmt.Sprintf(keyOrderStatus, orderID)).Err()
}

// Ping reports connectivity for health checks.
func (c *StatusCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *StatusCache) Close() error {
	return c.rdb.Close()
}
