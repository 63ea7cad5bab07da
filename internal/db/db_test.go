package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on"
	d, err := NewDB("sqlite3", dsn, noop.NewMeterProvider().Meter("test"), "test")
	require.NoError(t, err)
	d.SetMaxOpenConns(1)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSplitSQLStatements(t *testing.T) {
	stmts := splitSQLStatements(`
-- leading comment
CREATE TABLE a (id INT);

   -- indented comment
CREATE TABLE b (
    id INT
);
`)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id INT)", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}

func TestInitSchemaAndWithTx(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	require.NoError(t, d.InitSchema(ctx, "CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT UNIQUE);"))

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO things (name) VALUES (?)", "kept")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO things (name) VALUES (?)", "rolled back"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, d.QueryRowContext(ctx, "SELECT COUNT(*) FROM things").Scan(&n))
	assert.Equal(t, 1, n)

	_, err = d.ExecContext(ctx, "INSERT INTO things (name) VALUES (?)", "kept")
	assert.True(t, IsDuplicate(err))
}

func TestIsDuplicate(t *testing.T) {
	assert.False(t, IsDuplicate(nil))
	assert.False(t, IsDuplicate(errors.New("connection refused")))
	assert.True(t, IsDuplicate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'name'"}))
	assert.False(t, IsDuplicate(&mysql.MySQLError{Number: 1045, Message: "Access denied"}))
}

func gaugeValue(t *testing.T, reader *sdkmetric.ManualReader, name string) (int64, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			g, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok, "metric %s is not an int64 gauge", name)
			if len(g.DataPoints) > 0 {
				return g.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestMonitorPoolRecordsConnectionGauges(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	dsn := filepath.Join(t.TempDir(), "pool.db")
	d, err := NewDB("sqlite3", dsn, provider.Meter("test"), "test")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	_, recorded := gaugeValue(t, reader, "db.client.connections.idle")
	assert.False(t, recorded)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.MonitorPool(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		idle, ok := gaugeValue(t, reader, "db.client.connections.idle")
		return ok && idle >= 1
	}, time.Second, 10*time.Millisecond)

	active, ok := gaugeValue(t, reader, "db.client.connections.active")
	assert.True(t, ok)
	assert.Equal(t, int64(0), active)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("MonitorPool did not stop after cancel")
	}
}
