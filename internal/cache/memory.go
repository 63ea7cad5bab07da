package cache

import (
	"context"
	"sync"
	"time"

	"github.com/storefront/ecommerce-go-app/internal/models"
)

type cachedProduct struct {
	product models.Product
	expires time.Time
}

// MemoryCache is an in-process TTL cache, used when no Redis is configured.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[int64]cachedProduct
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		items: make(map[int64]cachedProduct),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, id int64) (*models.Product, bool) {
	c.mu.RLock()
	cached, exists := c.items[id]
	c.mu.RUnlock()

	if !exists || !c.now().Before(cached.expires) {
		return nil, false
	}
	p := cached.product
	return &p, true
}

func (c *MemoryCache) Set(_ context.Context, p *models.Product) error {
	c.mu.Lock()
	c.items[p.ID] = cachedProduct{
		product: *p,
		expires: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, ids ...int64) error {
	c.mu.Lock()
	for _, id := range ids {
		delete(c.items, id)
	}
	c.mu.Unlock()
	return nil
}
