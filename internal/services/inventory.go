package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
)

// Inventory is the only code that writes products.quantity. Every write also
// sets is_ended so that is_ended == (quantity == 0) holds after each statement.
//
// Methods take a db.Querier so the order workflow can run them inside its
// transaction. Callers own cache invalidation because only they know when the
// write is committed.
type Inventory struct {
	metrics *metrics.AppMetrics
}

func NewInventory(m *metrics.AppMetrics) *Inventory {
	return &Inventory{metrics: m}
}

// UpdateQuantity sets the stock of a product.
func (inv *Inventory) UpdateQuantity(ctx context.Context, q db.Querier, productID int64, quantity int) error {
	const op = "inventory.UpdateQuantity"
	if err := validateStock(op, quantity); err != nil {
		return err
	}

	start := time.Now()
	query := "UPDATE products SET quantity = ?, is_ended = ?, updated_at = ? WHERE id = ?"
	result, err := q.ExecContext(ctx, query, quantity, quantity == 0, now(), productID)
	inv.metrics.RecordDBQuery(ctx, "UPDATE", "products", query, start, err == nil)
	if err != nil {
		return apperr.Internal(op, fmt.Errorf("failed to update quantity: %w", err))
	}
	if n, err := result.RowsAffected(); err != nil {
		return apperr.Internal(op, err)
	} else if n == 0 {
		return productNotFound(op, productID)
	}

	inv.metrics.RecordInventoryLevel(ctx, productID, quantity)
	return nil
}

// IncreaseQuantity adds amount to the stock and returns the new quantity.
func (inv *Inventory) IncreaseQuantity(ctx context.Context, q db.Querier, productID int64, amount int) (int, error) {
	const op = "inventory.IncreaseQuantity"
	if err := validateAmount(op, amount); err != nil {
		return 0, err
	}

	start := time.Now()
	// MySQL applies SET clauses left to right, so is_ended must read the old quantity first
	query := "UPDATE products SET is_ended = (quantity + ? = 0), quantity = quantity + ?, updated_at = ? WHERE id = ?"
	result, err := q.ExecContext(ctx, query, amount, amount, now(), productID)
	inv.metrics.RecordDBQuery(ctx, "UPDATE", "products", query, start, err == nil)
	if err != nil {
		return 0, apperr.Internal(op, fmt.Errorf("failed to increase quantity: %w", err))
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, apperr.Internal(op, err)
	} else if n == 0 {
		return 0, productNotFound(op, productID)
	}

	return inv.currentQuantity(ctx, q, op, productID)
}

// DecreaseQuantity removes amount from the stock and returns the new quantity.
// The decrement is conditional on quantity >= amount, so stock never goes
// negative even under concurrent orders; a short product fails with a stock error.
func (inv *Inventory) DecreaseQuantity(ctx context.Context, q db.Querier, productID int64, amount int) (int, error) {
	const op = "inventory.DecreaseQuantity"
	if err := validateAmount(op, amount); err != nil {
		return 0, err
	}

	start := time.Now()
	// MySQL applies SET clauses left to right, so is_ended must read the old quantity first
	query := "UPDATE products SET is_ended = (quantity = ?), quantity = quantity - ?, updated_at = ? WHERE id = ? AND quantity >= ?"
	result, err := q.ExecContext(ctx, query, amount, amount, now(), productID, amount)
	inv.metrics.RecordDBQuery(ctx, "UPDATE", "products", query, start, err == nil)
	if err != nil {
		return 0, apperr.Internal(op, fmt.Errorf("failed to decrease quantity: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperr.Internal(op, err)
	}
	if n == 0 {
		available, err := inv.currentQuantity(ctx, q, op, productID)
		if err != nil {
			return 0, err
		}
		return 0, apperr.Stock(op, "Not enough stock for product %d: requested %d, available %d", productID, amount, available)
	}

	return inv.currentQuantity(ctx, q, op, productID)
}

func (inv *Inventory) currentQuantity(ctx context.Context, q db.Querier, op string, productID int64) (int, error) {
	start := time.Now()
	query := "SELECT quantity FROM products WHERE id = ?"
	var quantity int
	err := q.QueryRowContext(ctx, query, productID).Scan(&quantity)
	inv.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, productNotFound(op, productID)
	}
	if err != nil {
		return 0, apperr.Internal(op, fmt.Errorf("failed to read quantity: %w", err))
	}

	inv.metrics.RecordInventoryLevel(ctx, productID, quantity)
	return quantity, nil
}
