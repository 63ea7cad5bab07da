package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
	"github.com/storefront/ecommerce-go-app/internal/models"
)

const productColumns = "id, name, description, image_path, price, quantity, is_ended, category_id, created_at, updated_at"

const userColumns = "id, first_name, last_name, username, password_hash, phone, email, country, city, street, house, apartment, role, created_at, updated_at"

const orderColumns = "id, user_id, status, total_price, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

// now is the timestamp written to created_at/updated_at columns.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func scanProduct(r rowScanner) (*models.Product, error) {
	var p models.Product
	if err := r.Scan(&p.ID, &p.Name, &p.Description, &p.ImagePath, &p.Price, &p.Quantity, &p.IsEnded, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanUser(r rowScanner) (*models.User, error) {
	var u models.User
	var apartment sql.NullInt64
	if err := r.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Password, &u.Phone, &u.Email,
		&u.Country, &u.City, &u.Street, &u.House, &apartment, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if apartment.Valid {
		n := int(apartment.Int64)
		u.Apartment = &n
	}
	return &u, nil
}

func scanOrder(r rowScanner) (*models.Order, error) {
	var o models.Order
	if err := r.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalPrice, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// queryProduct loads one product through q, mapping a missing row to NotFound.
func queryProduct(ctx context.Context, q db.Querier, m *metrics.AppMetrics, op string, id int64) (*models.Product, error) {
	start := time.Now()
	query := "SELECT " + productColumns + " FROM products WHERE id = ?"
	p, err := scanProduct(q.QueryRowContext(ctx, query, id))
	m.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, productNotFound(op, id)
	}
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to get product: %w", err))
	}
	return p, nil
}

func userExists(ctx context.Context, q db.Querier, m *metrics.AppMetrics, op string, id int64) error {
	start := time.Now()
	query := "SELECT id FROM users WHERE id = ?"
	var found int64
	err := q.QueryRowContext(ctx, query, id).Scan(&found)
	m.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(op, "user")
	}
	if err != nil {
		return apperr.Internal(op, fmt.Errorf("failed to get user: %w", err))
	}
	return nil
}

func productNotFound(op string, id int64) error {
	return apperr.E(apperr.KindNotFound, op, fmt.Sprintf("product %d not found", id))
}

// sumLines returns Σ priceAtPurchase × quantity.
func sumLines(lines []models.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// asAppErr passes typed errors through and wraps anything else as internal.
func asAppErr(op string, err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	return apperr.Internal(op, err)
}
