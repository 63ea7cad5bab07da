// Package cache provides the read-through product cache used by the catalog.
// Entries are invalidated whenever a product's stock or fields are written.
package cache

import (
	"context"
	"time"

	"github.com/storefront/ecommerce-go-app/internal/models"
)

// DefaultTTL bounds how stale a cached product may get if an invalidation is lost.
const DefaultTTL = 5 * time.Minute

// DefaultPrefix namespaces product keys in a shared Redis.
const DefaultPrefix = "storefront:product:"

// ProductCache caches product records by id.
type ProductCache interface {
	// Get returns a copy of the cached product and true, or nil and false.
	Get(ctx context.Context, id int64) (*models.Product, bool)

	// Set stores the product under its id.
	Set(ctx context.Context, p *models.Product) error

	// Invalidate drops the given ids. Unknown ids are ignored.
	Invalidate(ctx context.Context, ids ...int64) error
}
