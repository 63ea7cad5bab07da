package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
	"github.com/storefront/ecommerce-go-app/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CartService handles cart-related operations. A cart is the set of
// cart_lines rows of a user, keyed by product.
type CartService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewCartService creates a new cart service
func NewCartService(db *db.DB, metrics *metrics.AppMetrics) *CartService {
	return &CartService{
		db:      db,
		metrics: metrics,
	}
}

// MonitorActiveCarts periodically records the number of non-empty carts
// until ctx is cancelled.
func (s *CartService) MonitorActiveCarts(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.CountActiveCarts(ctx); err == nil {
				s.metrics.ActiveCartsCount.Record(ctx, int64(n), metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{})...))
			} else if ctx.Err() == nil {
				slog.WarnContext(ctx, "failed to count active carts", "error", err)
			}
		}
	}
}

// CountActiveCarts returns the number of users with at least one cart line.
func (s *CartService) CountActiveCarts(ctx context.Context) (int, error) {
	start := time.Now()
	query := "SELECT COUNT(DISTINCT user_id) FROM cart_lines"
	var count int
	err := s.db.QueryRowContext(ctx, query).Scan(&count)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_lines", query, start, err == nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count carts: %w", err)
	}
	return count, nil
}

func cartAccess(op string, actor auth.Actor, userID int64, action auth.Action) error {
	if !auth.Decide(actor, auth.Resource{Kind: auth.ResourceCart, OwnerID: userID}, action) {
		return apperr.AccessDenied(op, "Access denied, you are not admin or this is not your cart")
	}
	return nil
}

// AddToCart adds quantity of a product to the user's cart, merging with an
// existing line. The product must be in stock and the merged quantity may not
// exceed its stock. Stock is only checked here, never reserved.
func (s *CartService) AddToCart(ctx context.Context, actor auth.Actor, userID, productID int64, quantity int) (*models.CartResponse, error) {
	const op = "cart.Add"
	if err := cartAccess(op, actor, userID, auth.ActionCartWrite); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, apperr.Validation(op, "Quantity must be a positive integer")
	}
	if productID <= 0 {
		return nil, apperr.Validation(op, "Product ID is missing")
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := userExists(ctx, tx, s.metrics, op, userID); err != nil {
			return err
		}
		product, err := queryProduct(ctx, tx, s.metrics, op, productID)
		if err != nil {
			return err
		}
		if product.IsEnded {
			s.metrics.RecordStockRejection(ctx, productID, "cart")
			return apperr.Stock(op, "Product %d is out of stock", productID)
		}

		start := time.Now()
		checkQuery := "SELECT quantity FROM cart_lines WHERE user_id = ? AND product_id = ?"
		var existing int
		err = tx.QueryRowContext(ctx, checkQuery, userID, productID).Scan(&existing)
		s.metrics.RecordDBQuery(ctx, "SELECT", "cart_lines", checkQuery, start, err == nil || errors.Is(err, sql.ErrNoRows))
		found := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return apperr.Internal(op, fmt.Errorf("failed to check cart line: %w", err))
		}

		if existing+quantity > product.Quantity {
			s.metrics.RecordStockRejection(ctx, productID, "cart")
			return apperr.Stock(op, "Not enough stock for product %d: requested %d, in cart %d, available %d",
				productID, quantity, existing, product.Quantity)
		}

		start = time.Now()
		if found {
			query := "UPDATE cart_lines SET quantity = ? WHERE user_id = ? AND product_id = ?"
			_, err = tx.ExecContext(ctx, query, existing+quantity, userID, productID)
			s.metrics.RecordDBQuery(ctx, "UPDATE", "cart_lines", query, start, err == nil)
		} else {
			query := "INSERT INTO cart_lines (user_id, product_id, quantity, added_at) VALUES (?, ?, ?, ?)"
			_, err = tx.ExecContext(ctx, query, userID, productID, quantity, time.Now().UTC())
			s.metrics.RecordDBQuery(ctx, "INSERT", "cart_lines", query, start, err == nil)
		}
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to write cart line: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, asAppErr(op, err)
	}

	return s.viewCart(ctx, op, userID)
}

// RemoveFromCart drops the line of one product from the cart
func (s *CartService) RemoveFromCart(ctx context.Context, actor auth.Actor, userID, productID int64) (*models.CartResponse, error) {
	const op = "cart.Remove"
	if err := cartAccess(op, actor, userID, auth.ActionCartWrite); err != nil {
		return nil, err
	}
	if err := userExists(ctx, s.db, s.metrics, op, userID); err != nil {
		return nil, err
	}

	start := time.Now()
	query := "DELETE FROM cart_lines WHERE user_id = ? AND product_id = ?"
	_, err := s.db.ExecContext(ctx, query, userID, productID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "cart_lines", query, start, err == nil)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to remove item from cart: %w", err))
	}

	return s.viewCart(ctx, op, userID)
}

// ClearCart empties the cart. Clearing an empty cart is not an error.
func (s *CartService) ClearCart(ctx context.Context, actor auth.Actor, userID int64) (*models.CartResponse, error) {
	const op = "cart.Clear"
	if err := cartAccess(op, actor, userID, auth.ActionCartWrite); err != nil {
		return nil, err
	}
	if err := userExists(ctx, s.db, s.metrics, op, userID); err != nil {
		return nil, err
	}
	if err := clearCartLines(ctx, s.db, s.metrics, op, userID); err != nil {
		return nil, err
	}
	s.recordCartSize(ctx, userID, 0)
	return &models.CartResponse{UserID: userID, Lines: []models.CartLineView{}, Total: decimal.Zero}, nil
}

// ViewCart returns the cart lines with the live product data
func (s *CartService) ViewCart(ctx context.Context, actor auth.Actor, userID int64) (*models.CartResponse, error) {
	const op = "cart.View"
	if err := cartAccess(op, actor, userID, auth.ActionRead); err != nil {
		return nil, err
	}
	if err := userExists(ctx, s.db, s.metrics, op, userID); err != nil {
		return nil, err
	}
	return s.viewCart(ctx, op, userID)
}

func (s *CartService) viewCart(ctx context.Context, op string, userID int64) (*models.CartResponse, error) {
	start := time.Now()
	query := `
		SELECT c.product_id, c.quantity, p.name, p.price, p.quantity, p.is_ended
		FROM cart_lines c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = ?
		ORDER BY c.added_at, c.product_id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_lines", query, start, err == nil)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to get cart lines: %w", err))
	}
	defer rows.Close()

	resp := &models.CartResponse{UserID: userID, Lines: []models.CartLineView{}, Total: decimal.Zero}
	for rows.Next() {
		var line models.CartLineView
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.Name, &line.Price, &line.InStock, &line.IsEnded); err != nil {
			return nil, apperr.Internal(op, fmt.Errorf("failed to scan cart line: %w", err))
		}
		line.LineTotal = line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		resp.Total = resp.Total.Add(line.LineTotal)
		resp.Lines = append(resp.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(op, err)
	}

	s.recordCartSize(ctx, userID, len(resp.Lines))
	return resp, nil
}

func (s *CartService) recordCartSize(ctx context.Context, userID int64, lines int) {
	s.metrics.CartItemsCount.Record(ctx, int64(lines), metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("user_id", userID),
	})...))
}

// clearCartLines deletes every line of a user's cart through q.
func clearCartLines(ctx context.Context, q db.Querier, m *metrics.AppMetrics, op string, userID int64) error {
	start := time.Now()
	query := "DELETE FROM cart_lines WHERE user_id = ?"
	_, err := q.ExecContext(ctx, query, userID)
	m.RecordDBQuery(ctx, "DELETE", "cart_lines", query, start, err == nil)
	if err != nil {
		return apperr.Internal(op, fmt.Errorf("failed to clear cart: %w", err))
	}
	return nil
}
