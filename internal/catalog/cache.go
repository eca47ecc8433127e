package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pricing/internal/pricing"
)

// errCorruptEntry marks a cached value that no longer decodes into a snapshot.
var errCorruptEntry = errors.New("corrupt catalog cache entry")

// Cache keeps item snapshots in Redis as JSON. A nil Cache or client disables caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func itemKey(warehouse, id string) string {
	return fmt.Sprintf("catalog:item:%s:%s", warehouse, id)
}

// Get returns the cached snapshot. A miss returns (nil, nil).
func (c *Cache) Get(ctx context.Context, warehouse, id string) (*pricing.CatalogItem, error) {
	if c == nil || c.client == nil || id == "" {
		return nil, nil
	}
	data, err := c.client.Get(ctx, itemKey(warehouse, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item pricing.CatalogItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptEntry, err)
	}
	return &item, nil
}

// Set stores the snapshot with the configured TTL.
func (c *Cache) Set(ctx context.Context, warehouse, id string, item *pricing.CatalogItem) error {
	if c == nil || c.client == nil || item == nil || id == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, itemKey(warehouse, id), data, c.ttl).Err()
}

// Invalidate drops the cached snapshot of one item.
func (c *Cache) Invalidate(ctx context.Context, warehouse, id string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, itemKey(warehouse, id)).Err()
}
