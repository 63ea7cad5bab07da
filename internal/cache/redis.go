package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/storefront/ecommerce-go-app/internal/models"
)

// RedisCache shares cached products across replicas.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Option customizes a RedisCache.
type Option func(*RedisCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

func NewRedisCache(client *redis.Client, opts ...Option) *RedisCache {
	c := &RedisCache{
		client: client,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(id int64) string {
	return fmt.Sprintf("%s%d", c.prefix, id)
}

// Get degrades to a miss on any Redis or decoding error.
func (c *RedisCache) Get(ctx context.Context, id int64) (*models.Product, bool) {
	val, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "product cache unavailable", "product_id", id, "error", err)
		return nil, false
	}

	var p models.Product
	if err := json.Unmarshal(val, &p); err != nil {
		slog.WarnContext(ctx, "corrupt product cache entry", "product_id", id, "error", err)
		return nil, false
	}
	return &p, true
}

func (c *RedisCache) Set(ctx context.Context, p *models.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}
	if err := c.client.Set(ctx, c.key(p.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set product in Redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate products in Redis: %w", err)
	}
	return nil
}
