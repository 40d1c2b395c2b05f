package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
)

const lowStockVersionKey = "stock:low:version"

// LowStockCache keeps low-stock listings in Redis with versioned keys. A
// change-bus publish touching products or movements bumps the version, so
// stale entries simply fall out of rotation instead of being deleted.
type LowStockCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewLowStockCache instantiates the cache helper.
func NewLowStockCache(client *redis.Client, ttl time.Duration) *LowStockCache {
	return &LowStockCache{client: client, ttl: ttl}
}

// InvalidateOn subscribes the cache to the change bus and returns the
// unsubscribe handle. The bump runs on its own goroutine because listeners
// must not perform I/O on the publishing path.
func (c *LowStockCache) InvalidateOn(b *bus.Bus) func() {
	return b.Subscribe(func(ev bus.Event) {
		if ev.Touches(bus.KindProduct) || ev.Touches(bus.KindMovement) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				c.Bump(ctx)
			}()
		}
	})
}

// Bump advances the cache version, invalidating every cached listing.
func (c *LowStockCache) Bump(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Incr(ctx, lowStockVersionKey).Err()
}

// Fetch loads the cached listing for the organization or rebuilds it through
// the loader. Concurrent rebuilds of the same key collapse into one.
func (c *LowStockCache) Fetch(ctx context.Context, orgID int64, loader func(context.Context) ([]LowStockItem, error)) ([]LowStockItem, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	key, err := c.buildKey(ctx, orgID)
	if err != nil {
		// Cache trouble never breaks the read path.
		return loader(ctx)
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var items []LowStockItem
		if jsonErr := json.Unmarshal(payload, &items); jsonErr == nil {
			return items, nil
		}
	} else if err != redis.Nil {
		return loader(ctx)
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		items, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(items); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]LowStockItem), nil
}

func (c *LowStockCache) buildKey(ctx context.Context, orgID int64) (string, error) {
	ver, err := c.client.Get(ctx, lowStockVersionKey).Int64()
	if err == redis.Nil {
		ver = 1
		if err := c.client.Set(ctx, lowStockVersionKey, ver, 0).Err(); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("stock:low:%d:%d", orgID, ver), nil
}
