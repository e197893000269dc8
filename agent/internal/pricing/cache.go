package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache stores USD prices for a short TTL.
type Cache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool)
	Set(ctx context.Context, key string, price decimal.Decimal, ttl time.Duration)
}

type memoryItem struct {
	price   decimal.Decimal
	expires time.Time
}

// MemoryCache is the in-process fallback when no Redis is configured.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return decimal.Zero, false
	}
	if c.now().After(it.expires) {
		delete(c.items, key)
		return decimal.Zero, false
	}
	return it.price, true
}

func (c *MemoryCache) Set(_ context.Context, key string, price decimal.Decimal, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryItem{price: price, expires: c.now().Add(ttl)}
}

// RedisCache shares prices between replicas.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client, prefix: "walletwatch:price:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (decimal.Decimal, bool) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (c *RedisCache) Set(ctx context.Context, key string, price decimal.Decimal, ttl time.Duration) {
	_ = c.client.Set(ctx, c.prefix+key, price.String(), ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
