package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/cache"
	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
	"github.com/storefront/ecommerce-go-app/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ProductFilter narrows ListProducts. Zero values mean no restriction.
type ProductFilter struct {
	CategoryID int64
	OnlyActual bool // only products that are not ended
	Limit      int
	Offset     int
}

// ProductService handles product-related operations
type ProductService struct {
	db        *db.DB
	metrics   *metrics.AppMetrics
	cache     cache.ProductCache
	inventory *Inventory
}

// NewProductService creates a new product service
func NewProductService(db *db.DB, metrics *metrics.AppMetrics, cache cache.ProductCache, inventory *Inventory) *ProductService {
	return &ProductService{
		db:        db,
		metrics:   metrics,
		cache:     cache,
		inventory: inventory,
	}
}

func canManageCatalog(op string, actor auth.Actor) error {
	if !auth.Decide(actor, auth.Resource{Kind: auth.ResourceCatalog}, auth.ActionManage) {
		return apperr.AccessDenied(op, "Access denied, admin role required")
	}
	return nil
}

// ListProducts returns a page of products
func (s *ProductService) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	const op = "products.List"

	var where []string
	var args []any
	if f.CategoryID != 0 {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.OnlyActual {
		where = append(where, "is_ended = ?")
		args = append(args, false)
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to query products: %w", err))
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperr.Internal(op, fmt.Errorf("failed to scan product: %w", err))
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return products, nil
}

// ListActualProducts returns the products that are still in stock
func (s *ProductService) ListActualProducts(ctx context.Context, limit, offset int) ([]models.Product, error) {
	return s.ListProducts(ctx, ProductFilter{OnlyActual: true, Limit: limit, Offset: offset})
}

// GetProduct returns a product by ID, read through the product cache
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	const op = "products.Get"

	p, hit := s.cache.Get(ctx, id)
	s.metrics.RecordCacheLookup(ctx, hit)
	if !hit {
		var err error
		p, err = queryProduct(ctx, s.db, s.metrics, op, id)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, p); err != nil {
			slog.WarnContext(ctx, "failed to cache product", "product_id", id, "error", err)
		}
	}

	s.metrics.ProductsViewed.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("product_id", id),
		attribute.Int64("category_id", p.CategoryID),
		attribute.Bool("cache_hit", hit),
	})...))
	return p, nil
}

// CreateProduct adds a product to the catalog. The category must exist.
func (s *ProductService) CreateProduct(ctx context.Context, actor auth.Actor, in models.ProductInput) (*models.Product, error) {
	const op = "products.Create"
	if err := canManageCatalog(op, actor); err != nil {
		return nil, err
	}
	if in.Name == nil || in.Description == nil || in.Price == nil || in.CategoryID == nil {
		return nil, apperr.Validation(op, "name, description, price and categoryId are required")
	}

	p := &models.Product{
		Name:        strings.TrimSpace(*in.Name),
		Description: strings.TrimSpace(*in.Description),
		Price:       *in.Price,
		CategoryID:  *in.CategoryID,
	}
	if in.ImagePath != nil {
		p.ImagePath = *in.ImagePath
	}
	if in.Quantity != nil {
		p.Quantity = *in.Quantity
	}
	p.IsEnded = p.Quantity == 0
	if err := s.validateProduct(op, p); err != nil {
		return nil, err
	}
	if err := s.categoryExists(ctx, op, p.CategoryID); err != nil {
		return nil, err
	}

	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt

	start := time.Now()
	query := "INSERT INTO products (name, description, image_path, price, quantity, is_ended, category_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	result, err := s.db.ExecContext(ctx, query, p.Name, p.Description, p.ImagePath, p.Price, p.Quantity, p.IsEnded, p.CategoryID, p.CreatedAt, p.UpdatedAt)
	s.metrics.RecordDBQuery(ctx, "INSERT", "products", query, start, err == nil)
	if db.IsDuplicate(err) {
		return nil, apperr.Validation(op, "Product name %q is already in use", p.Name)
	}
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to create product: %w", err))
	}
	if p.ID, err = result.LastInsertId(); err != nil {
		return nil, apperr.Internal(op, err)
	}

	s.metrics.RecordInventoryLevel(ctx, p.ID, p.Quantity)
	slog.InfoContext(ctx, "product created", "product_id", p.ID, "quantity", p.Quantity)
	return p, nil
}

// UpdateProduct applies a partial update. A new quantity goes through the
// inventory so is_ended follows it.
func (s *ProductService) UpdateProduct(ctx context.Context, actor auth.Actor, id int64, in models.ProductInput) (*models.Product, error) {
	const op = "products.Update"
	if err := canManageCatalog(op, actor); err != nil {
		return nil, err
	}

	p, err := queryProduct(ctx, s.db, s.metrics, op, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.ImagePath != nil {
		p.ImagePath = *in.ImagePath
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.CategoryID != nil && *in.CategoryID != p.CategoryID {
		if err := s.categoryExists(ctx, op, *in.CategoryID); err != nil {
			return nil, err
		}
		p.CategoryID = *in.CategoryID
	}
	if in.Quantity != nil {
		p.Quantity = *in.Quantity
	}
	if err := s.validateProduct(op, p); err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "UPDATE products SET name = ?, description = ?, image_path = ?, price = ?, category_id = ?, updated_at = ? WHERE id = ?"
		_, err := tx.ExecContext(ctx, query, p.Name, p.Description, p.ImagePath, p.Price, p.CategoryID, now(), id)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "products", query, start, err == nil)
		if db.IsDuplicate(err) {
			return apperr.Validation(op, "Product name %q is already in use", p.Name)
		}
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to update product: %w", err))
		}
		if in.Quantity != nil {
			return s.inventory.UpdateQuantity(ctx, tx, id, p.Quantity)
		}
		return nil
	})
	if err != nil {
		return nil, asAppErr(op, err)
	}

	s.invalidate(ctx, id)
	return queryProduct(ctx, s.db, s.metrics, op, id)
}

// DeleteProduct removes a product and drops it from every cart
func (s *ProductService) DeleteProduct(ctx context.Context, actor auth.Actor, id int64) error {
	const op = "products.Delete"
	if err := canManageCatalog(op, actor); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "DELETE FROM products WHERE id = ?"
		result, err := tx.ExecContext(ctx, query, id)
		s.metrics.RecordDBQuery(ctx, "DELETE", "products", query, start, err == nil)
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to delete product: %w", err))
		}
		if n, err := result.RowsAffected(); err != nil {
			return apperr.Internal(op, err)
		} else if n == 0 {
			return productNotFound(op, id)
		}

		start = time.Now()
		query = "DELETE FROM cart_lines WHERE product_id = ?"
		_, err = tx.ExecContext(ctx, query, id)
		s.metrics.RecordDBQuery(ctx, "DELETE", "cart_lines", query, start, err == nil)
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to remove product from carts: %w", err))
		}
		return nil
	})
	if err != nil {
		return asAppErr(op, err)
	}

	s.invalidate(ctx, id)
	slog.InfoContext(ctx, "product deleted", "product_id", id)
	return nil
}

// IncreaseQuantity adds stock to a product
func (s *ProductService) IncreaseQuantity(ctx context.Context, actor auth.Actor, id int64, amount int) (*models.Product, error) {
	const op = "products.IncreaseQuantity"
	if err := canManageCatalog(op, actor); err != nil {
		return nil, err
	}
	if _, err := s.inventory.IncreaseQuantity(ctx, s.db, id, amount); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return queryProduct(ctx, s.db, s.metrics, op, id)
}

// DecreaseQuantity removes stock from a product. It fails with a stock error
// rather than letting the quantity go negative.
func (s *ProductService) DecreaseQuantity(ctx context.Context, actor auth.Actor, id int64, amount int) (*models.Product, error) {
	const op = "products.DecreaseQuantity"
	if err := canManageCatalog(op, actor); err != nil {
		return nil, err
	}
	if _, err := s.inventory.DecreaseQuantity(ctx, s.db, id, amount); err != nil {
		if apperr.Is(err, apperr.KindStock) {
			s.metrics.RecordStockRejection(ctx, id, "admin")
		}
		return nil, err
	}
	s.invalidate(ctx, id)
	return queryProduct(ctx, s.db, s.metrics, op, id)
}

func (s *ProductService) invalidate(ctx context.Context, ids ...int64) {
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		slog.WarnContext(ctx, "failed to invalidate product cache", "product_ids", ids, "error", err)
	}
}

func (s *ProductService) validateProduct(op string, p *models.Product) error {
	if err := validateProductName(op, p.Name); err != nil {
		return err
	}
	if err := validateProductDescription(op, p.Description); err != nil {
		return err
	}
	if err := validatePrice(op, p.Price); err != nil {
		return err
	}
	return validateStock(op, p.Quantity)
}

func (s *ProductService) categoryExists(ctx context.Context, op string, id int64) error {
	start := time.Now()
	query := "SELECT id FROM categories WHERE id = ?"
	var found int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&found)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(op, "category")
	}
	if err != nil {
		return apperr.Internal(op, fmt.Errorf("failed to get category: %w", err))
	}
	return nil
}
