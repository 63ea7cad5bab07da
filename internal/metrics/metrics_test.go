package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestNewAppMetricsWithNoopMeter(t *testing.T) {
	m, err := NewAppMetrics(noop.NewMeterProvider().Meter("test"), "svc", "sqlite3")
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDBQuery(ctx, "SELECT", "products", "SELECT 1", time.Now(), true)
	m.RecordOrderCreated(ctx, 2, 20)
	m.RecordStatusTransition(ctx, "pending", "cancelled")
	m.RecordStockRejection(ctx, 1, "cart")
	m.RecordInventoryLevel(ctx, 1, 3)
	m.RecordCacheLookup(ctx, true)
}

func TestBusinessCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewAppMetrics(provider.Meter("test"), "svc", "sqlite3")
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordOrderCreated(ctx, 1, 20)
	m.RecordOrderCreated(ctx, 3, 5.5)
	m.RecordStatusTransition(ctx, "pending", "shipping")
	m.RecordStockRejection(ctx, 7, "order")
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)
	m.RecordCacheLookup(ctx, false)
	m.RecordDBQuery(ctx, "UPDATE", "products", "UPDATE products", time.Now(), false)

	assert.Equal(t, int64(2), collectSum(t, reader, "orders_created_total"))
	assert.Equal(t, int64(1), collectSum(t, reader, "order_status_transitions_total"))
	assert.Equal(t, int64(1), collectSum(t, reader, "stock_rejections_total"))
	assert.Equal(t, int64(1), collectSum(t, reader, "cache_hits_total"))
	assert.Equal(t, int64(2), collectSum(t, reader, "cache_misses_total"))
	assert.Equal(t, int64(1), collectSum(t, reader, "db.client.queries.count"))
}

func TestParseHeaders(t *testing.T) {
	assert.Empty(t, parseHeaders(""))
	assert.Equal(t, map[string]string{
		"signoz-ingestion-key": "abc=def",
		"x-team":               "shop",
	}, parseHeaders(" signoz-ingestion-key=abc=def , x-team=shop,broken"))
}
