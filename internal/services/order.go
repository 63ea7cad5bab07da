package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/cache"
	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/events"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
	"github.com/storefront/ecommerce-go-app/internal/models"
)

// OrderService handles order-related operations
type OrderService struct {
	db        *db.DB
	metrics   *metrics.AppMetrics
	inventory *Inventory
	cache     cache.ProductCache
	events    events.Publisher
}

// NewOrderService creates a new order service
func NewOrderService(db *db.DB, metrics *metrics.AppMetrics, inventory *Inventory, cache cache.ProductCache, publisher events.Publisher) *OrderService {
	return &OrderService{
		db:        db,
		metrics:   metrics,
		inventory: inventory,
		cache:     cache,
		events:    publisher,
	}
}

func orderAccess(op string, actor auth.Actor, ownerID int64, action auth.Action) error {
	if !auth.Decide(actor, auth.Resource{Kind: auth.ResourceOrder, OwnerID: ownerID}, action) {
		return apperr.AccessDenied(op, "Access denied, you are not admin or this is not your order")
	}
	return nil
}

type cartEntry struct {
	productID int64
	quantity  int
	price     decimal.NullDecimal
}

// CreateOrder turns the user's cart into a pending order. Prices are taken
// from the product records, the cart is cleared and stock is decremented,
// all in one transaction: a missing product or short stock rolls the whole
// order back and leaves the cart as it was.
func (s *OrderService) CreateOrder(ctx context.Context, actor auth.Actor, userID int64) (*models.Order, error) {
	const op = "orders.Create"
	if err := orderAccess(op, actor, userID, auth.ActionOrderCreate); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := userExists(ctx, tx, s.metrics, op, userID); err != nil {
			return err
		}

		entries, err := s.loadCart(ctx, tx, op, userID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return apperr.E(apperr.KindEmptyCart, op, "User's cart is empty")
		}

		lines := make([]models.OrderLine, 0, len(entries))
		for _, e := range entries {
			if !e.price.Valid {
				return productNotFound(op, e.productID)
			}
			lines = append(lines, models.OrderLine{
				ProductID:       e.productID,
				PriceAtPurchase: e.price.Decimal,
				Quantity:        e.quantity,
			})
		}

		ts := now()
		order = &models.Order{
			UserID:     userID,
			Lines:      lines,
			Status:     models.StatusPending,
			TotalPrice: sumLines(lines),
			CreatedAt:  ts,
			UpdatedAt:  ts,
		}
		if err := s.insertOrder(ctx, tx, op, order); err != nil {
			return err
		}
		if err := clearCartLines(ctx, tx, s.metrics, op, userID); err != nil {
			return err
		}

		for _, l := range lines {
			if _, err := s.inventory.DecreaseQuantity(ctx, tx, l.ProductID, l.Quantity); err != nil {
				if apperr.Is(err, apperr.KindStock) {
					s.metrics.RecordStockRejection(ctx, l.ProductID, "order")
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, asAppErr(op, err)
	}

	s.invalidateProducts(ctx, order.Lines)
	revenue, _ := order.TotalPrice.Float64()
	s.metrics.RecordOrderCreated(ctx, len(order.Lines), revenue)
	events.Notify(ctx, s.events, events.TopicOrderCreated, orderKey(order.ID), events.NewOrderCreated(order, actor.UserID))

	slog.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"user_id", userID,
		"actor_id", actor.UserID,
		"lines", len(order.Lines),
		"items", order.TotalQuantity(),
		"total", order.TotalPrice.String(),
	)
	return order, nil
}

func (s *OrderService) loadCart(ctx context.Context, tx *sql.Tx, op string, userID int64) ([]cartEntry, error) {
	start := time.Now()
	query := `
		SELECT c.product_id, c.quantity, p.price
		FROM cart_lines c
		LEFT JOIN products p ON p.id = c.product_id
		WHERE c.user_id = ?
		ORDER BY c.added_at, c.product_id
	`
	rows, err := tx.QueryContext(ctx, query, userID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_lines", query, start, err == nil)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to get cart lines: %w", err))
	}
	defer rows.Close()

	var entries []cartEntry
	for rows.Next() {
		var e cartEntry
		if err := rows.Scan(&e.productID, &e.quantity, &e.price); err != nil {
			return nil, apperr.Internal(op, fmt.Errorf("failed to scan cart line: %w", err))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return entries, nil
}

func (s *OrderService) insertOrder(ctx context.Context, tx *sql.Tx, op string, order *models.Order) error {
	start := time.Now()
	query := "INSERT INTO orders (user_id, status, total_price, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	result, err := tx.ExecContext(ctx, query, order.UserID, order.Status, order.TotalPrice, order.CreatedAt, order.UpdatedAt)
	s.metrics.RecordDBQuery(ctx, "INSERT", "orders", query, start, err == nil)
	if err != nil {
		return apperr.Internal(op, fmt.Errorf("failed to create order: %w", err))
	}
	if order.ID, err = result.LastInsertId(); err != nil {
		return apperr.Internal(op, fmt.Errorf("failed to get order ID: %w", err))
	}

	query = "INSERT INTO order_lines (order_id, product_id, price_at_purchase, quantity) VALUES (?, ?, ?, ?)"
	for _, l := range order.Lines {
		start = time.Now()
		_, err := tx.ExecContext(ctx, query, order.ID, l.ProductID, l.PriceAtPurchase, l.Quantity)
		s.metrics.RecordDBQuery(ctx, "INSERT", "order_lines", query, start, err == nil)
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to create order line: %w", err))
		}
	}
	return nil
}

// GetOrder returns an order visible to the actor
func (s *OrderService) GetOrder(ctx context.Context, actor auth.Actor, id int64) (*models.Order, error) {
	const op = "orders.Get"
	order, err := s.loadOrder(ctx, s.db, op, id)
	if err != nil {
		return nil, err
	}
	if err := orderAccess(op, actor, order.UserID, auth.ActionRead); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns every order. Admin only.
func (s *OrderService) ListOrders(ctx context.Context, actor auth.Actor) ([]models.Order, error) {
	const op = "orders.List"
	if !actor.IsAdmin() {
		return nil, apperr.AccessDenied(op, "Access denied, admin role required")
	}
	return s.listOrders(ctx, op, "SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC, id DESC")
}

// ListUserOrders returns all orders for a user
func (s *OrderService) ListUserOrders(ctx context.Context, actor auth.Actor, userID int64) ([]models.Order, error) {
	const op = "orders.ListUser"
	if err := orderAccess(op, actor, userID, auth.ActionRead); err != nil {
		return nil, err
	}
	if err := userExists(ctx, s.db, s.metrics, op, userID); err != nil {
		return nil, err
	}
	return s.listOrders(ctx, op, "SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID)
}

func (s *OrderService) listOrders(ctx context.Context, op, query string, args ...any) ([]models.Order, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to query orders: %w", err))
	}

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, apperr.Internal(op, fmt.Errorf("failed to scan order: %w", err))
		}
		orders = append(orders, *o)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	for i := range orders {
		if orders[i].Lines, err = s.loadLines(ctx, s.db, op, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *OrderService) loadOrder(ctx context.Context, q db.Querier, op string, id int64) (*models.Order, error) {
	start := time.Now()
	query := "SELECT " + orderColumns + " FROM orders WHERE id = ?"
	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(op, "order")
	}
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to get order: %w", err))
	}

	if order.Lines, err = s.loadLines(ctx, q, op, id); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) loadLines(ctx context.Context, q db.Querier, op string, orderID int64) ([]models.OrderLine, error) {
	start := time.Now()
	query := "SELECT product_id, price_at_purchase, quantity FROM order_lines WHERE order_id = ? ORDER BY id"
	rows, err := q.QueryContext(ctx, query, orderID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "order_lines", query, start, err == nil)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to get order lines: %w", err))
	}
	defer rows.Close()

	lines := []models.OrderLine{}
	for rows.Next() {
		var l models.OrderLine
		if err := rows.Scan(&l.ProductID, &l.PriceAtPurchase, &l.Quantity); err != nil {
			return nil, apperr.Internal(op, fmt.Errorf("failed to scan order line: %w", err))
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return lines, nil
}

// UpdateStatus moves an order along the state machine. Admins may apply any
// listed transition, owners may only cancel a pending order. Cancelling a
// pending order puts every line's quantity back on its product.
func (s *OrderService) UpdateStatus(ctx context.Context, actor auth.Actor, id int64, to models.OrderStatus) (*models.Order, error) {
	const op = "orders.UpdateStatus"

	order, err := s.loadOrder(ctx, s.db, op, id)
	if err != nil {
		return nil, err
	}
	if err := orderAccess(op, actor, order.UserID, auth.ActionRead); err != nil {
		return nil, err
	}
	if to == "" {
		return nil, apperr.Validation(op, "New status is missing")
	}
	if !to.Valid() {
		return nil, apperr.Validation(op, "Unknown order status %q", to)
	}

	from := order.Status
	if !transitionAllowed(actor, order.UserID, from, to) {
		return nil, apperr.InvalidTransition(op, string(from), string(to))
	}

	restore := from == models.StatusPending && to == models.StatusCancelled
	var restored []models.OrderLine
	ts := now()
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?"
		result, err := tx.ExecContext(ctx, query, to, ts, id, from)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", query, start, err == nil)
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to update order status: %w", err))
		}
		if n, err := result.RowsAffected(); err != nil {
			return apperr.Internal(op, err)
		} else if n == 0 {
			// Another request changed the status since it was read
			return apperr.InvalidTransition(op, string(from), string(to))
		}

		if !restore {
			return nil
		}
		for _, l := range order.Lines {
			if _, err := s.inventory.IncreaseQuantity(ctx, tx, l.ProductID, l.Quantity); err != nil {
				if apperr.Is(err, apperr.KindNotFound) {
					slog.WarnContext(ctx, "skipping stock restore for missing product",
						"order_id", id, "product_id", l.ProductID, "quantity", l.Quantity)
					continue
				}
				return err
			}
			restored = append(restored, l)
		}
		return nil
	})
	if err != nil {
		return nil, asAppErr(op, err)
	}

	order.Status = to
	order.UpdatedAt = ts
	s.invalidateProducts(ctx, restored)
	s.metrics.RecordStatusTransition(ctx, string(from), string(to))
	events.Notify(ctx, s.events, events.TopicOrderStatusChanged, orderKey(id), events.NewOrderStatusChanged(order, from, actor.UserID, restore))

	slog.InfoContext(ctx, "order status changed",
		"order_id", id,
		"from", from,
		"to", to,
		"actor_id", actor.UserID,
		"restored_lines", len(restored),
	)
	return order, nil
}

// DeleteOrder removes an order and its lines. Admin only. Stock is not touched.
func (s *OrderService) DeleteOrder(ctx context.Context, actor auth.Actor, id int64) error {
	const op = "orders.Delete"

	order, err := s.loadOrder(ctx, s.db, op, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) && !actor.IsAdmin() {
			return apperr.AccessDenied(op, "Access denied, admin role required")
		}
		return err
	}
	if err := orderAccess(op, actor, order.UserID, auth.ActionDelete); err != nil {
		return err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "DELETE FROM order_lines WHERE order_id = ?"
		_, err := tx.ExecContext(ctx, query, id)
		s.metrics.RecordDBQuery(ctx, "DELETE", "order_lines", query, start, err == nil)
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to delete order lines: %w", err))
		}

		start = time.Now()
		query = "DELETE FROM orders WHERE id = ?"
		result, err := tx.ExecContext(ctx, query, id)
		s.metrics.RecordDBQuery(ctx, "DELETE", "orders", query, start, err == nil)
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to delete order: %w", err))
		}
		if n, err := result.RowsAffected(); err != nil {
			return apperr.Internal(op, err)
		} else if n == 0 {
			return apperr.NotFound(op, "order")
		}
		return nil
	})
	if err != nil {
		return asAppErr(op, err)
	}

	events.Notify(ctx, s.events, events.TopicOrderDeleted, orderKey(id), events.NewOrderDeleted(order, actor.UserID))
	slog.InfoContext(ctx, "order deleted", "order_id", id, "actor_id", actor.UserID)
	return nil
}

func (s *OrderService) invalidateProducts(ctx context.Context, lines []models.OrderLine) {
	if len(lines) == 0 {
		return
	}
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		slog.WarnContext(ctx, "failed to invalidate product cache", "product_ids", ids, "error", err)
	}
}

func orderKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
