// Package dbtest opens throwaway SQLite stores with the storefront schema for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
)

// Schema mirrors schema.sql in SQLite syntax.
const Schema = `
CREATE TABLE users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    phone TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    country TEXT NOT NULL,
    city TEXT NOT NULL,
    street TEXT NOT NULL,
    house INTEGER NOT NULL,
    apartment INTEGER NULL,
    role TEXT NOT NULL DEFAULT 'user',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE categories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL
);

CREATE TABLE products (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL,
    image_path TEXT NOT NULL DEFAULT '',
    price DECIMAL(10,2) NOT NULL,
    quantity INTEGER NOT NULL DEFAULT 0,
    is_ended BOOLEAN NOT NULL DEFAULT 1,
    category_id INTEGER NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE cart_lines (
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    product_id INTEGER NOT NULL,
    quantity INTEGER NOT NULL,
    added_at DATETIME NOT NULL,
    PRIMARY KEY (user_id, product_id)
);

CREATE TABLE orders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    status TEXT NOT NULL,
    total_price DECIMAL(12,2) NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE order_lines (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    product_id INTEGER NOT NULL,
    price_at_purchase DECIMAL(10,2) NOT NULL,
    quantity INTEGER NOT NULL
);
`

// Open creates an empty store in a temp dir, closed when the test ends.
// A single connection keeps SQLite transactions from deadlocking each other.
func Open(t testing.TB) *db.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "store.db") + "?_foreign_keys=on&_busy_timeout=5000"
	d, err := db.NewDB("sqlite3", dsn, noop.NewMeterProvider().Meter("test"), "test")
	require.NoError(t, err)
	d.SetMaxOpenConns(1)
	t.Cleanup(func() { d.Close() })

	require.NoError(t, d.InitSchema(context.Background(), Schema))
	return d
}

// Metrics returns application metrics backed by a noop meter.
func Metrics(t testing.TB) *metrics.AppMetrics {
	t.Helper()
	m, err := metrics.NewAppMetrics(noop.NewMeterProvider().Meter("test"), "test", "sqlite3")
	require.NoError(t, err)
	return m
}
