package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/ecommerce-go-app/internal/models"
)

func sampleProduct(id int64) *models.Product {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Product{
		ID:          id,
		Name:        "Desk lamp",
		Description: "Warm light for late nights",
		Price:       decimal.RequireFromString("10.50"),
		Quantity:    5,
		CategoryID:  2,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, sampleProduct(1)))
	got, ok := c.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, "Desk lamp", got.Name)

	// Returned products are copies
	got.Quantity = 0
	again, _ := c.Get(ctx, 1)
	assert.Equal(t, 5, again.Quantity)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, 1)
	assert.False(t, ok, "entry should expire")
}

func TestMemoryCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	require.NoError(t, c.Set(ctx, sampleProduct(1)))
	require.NoError(t, c.Set(ctx, sampleProduct(2)))

	require.NoError(t, c.Invalidate(ctx, 1, 99))

	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)
	_, ok = c.Get(ctx, 2)
	assert.True(t, ok)
}

func TestRedisCacheGetSet(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	c := NewRedisCache(client, WithTTL(time.Minute), WithPrefix("test:"))

	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, sampleProduct(1)))
	assert.True(t, mr.Exists("test:1"))

	got, ok := c.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ID)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, 5, got.Quantity)

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, 1)
	assert.False(t, ok, "entry should expire")
}

func TestRedisCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	_, client := setupTestRedis(t)
	c := NewRedisCache(client)

	require.NoError(t, c.Set(ctx, sampleProduct(1)))
	require.NoError(t, c.Invalidate(ctx, 1))
	require.NoError(t, c.Invalidate(ctx))

	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)
}

func TestRedisCacheDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	c := NewRedisCache(client)

	require.NoError(t, mr.Set(DefaultPrefix+"3", "{not json"))
	_, ok := c.Get(ctx, 3)
	assert.False(t, ok)

	mr.Close()
	_, ok = c.Get(ctx, 3)
	assert.False(t, ok)
	assert.Error(t, c.Set(ctx, sampleProduct(3)))
}
