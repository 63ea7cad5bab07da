package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/storefront/ecommerce-go-app/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// AppMetrics holds all application metrics
type AppMetrics struct {
	// HTTP Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestsErrors  metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Database Metrics
	DBQueriesTotal  metric.Int64Counter
	DBQueryDuration metric.Float64Histogram

	// Business Metrics
	OrdersCreated          metric.Int64Counter
	OrderStatusTransitions metric.Int64Counter
	StockRejections        metric.Int64Counter
	ProductsViewed         metric.Int64Counter
	CartItemsCount         metric.Int64Gauge
	InventoryLevel         metric.Int64Gauge
	RevenueTotal           metric.Float64Counter

	// Application Metrics
	ActiveUsersCount metric.Int64Gauge
	ActiveCartsCount metric.Int64Gauge
	CacheHits        metric.Int64Counter
	CacheMisses      metric.Int64Counter

	serviceName string
	dbSystem    string
}

// InitMetrics builds the meter provider and the application instruments.
// With metrics disabled the provider has no reader, so nothing is exported.
func InitMetrics(ctx context.Context, cfg *config.Config) (*AppMetrics, *sdkmetric.MeterProvider, error) {
	res, err := buildResource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.MetricsEnabled {
		exporterOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.OTELExporterOTLPEndpoint),
			otlpmetrichttp.WithURLPath("/v1/metrics"),
		}
		if cfg.OTELExporterOTLPHeaders != "" {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithHeaders(parseHeaders(cfg.OTELExporterOTLPHeaders)))
		}
		// http:// collectors need insecure, https:// endpoints must not set it
		if cfg.OTELExporterOTLPInsecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}

		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(10*time.Second),
		)))
		slog.Info("metrics exporter configured",
			"endpoint", cfg.OTELExporterOTLPEndpoint,
			"insecure", cfg.OTELExporterOTLPInsecure,
			"interval", "10s",
		)
	} else {
		slog.Info("metrics export disabled")
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	m, err := NewAppMetrics(meterProvider.Meter(cfg.OTELServiceName), cfg.OTELServiceName, "mysql")
	if err != nil {
		return nil, nil, err
	}
	return m, meterProvider, nil
}

func buildResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	envRes, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		envRes = resource.Empty()
	}

	// Explicit attributes take precedence over OTEL_RESOURCE_ATTRIBUTES
	explicitRes, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.OTELServiceName),
			semconv.ServiceVersion(cfg.OTELServiceVersion),
			attribute.String("deployment.environment", cfg.OTELDeploymentEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create explicit resource: %w", err)
	}

	res, err := resource.Merge(envRes, explicitRes)
	if err != nil {
		return nil, fmt.Errorf("failed to merge resources: %w", err)
	}

	name, ok := res.Set().Value(semconv.ServiceNameKey)
	if !ok || name.AsString() == "" {
		return nil, fmt.Errorf("service.name is not set in resource attributes")
	}
	return res, nil
}

// NewAppMetrics creates every instrument from meter. dbSystem is reported as
// the db.system attribute of query metrics.
func NewAppMetrics(meter metric.Meter, serviceName, dbSystem string) (*AppMetrics, error) {
	// Latency buckets in milliseconds, up to 60s
	buckets := []float64{2, 4, 6, 8, 10, 50, 100, 200, 400, 800, 1000, 1400, 2000, 5000, 10000, 15000, 20000, 30000, 45000, 60000}

	m := &AppMetrics{serviceName: serviceName, dbSystem: dbSystem}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.HTTPRequestsTotal, "http.server.request.count", "Total number of HTTP requests"},
		{&m.HTTPRequestsErrors, "http.server.request.error.count", "Total number of HTTP error requests"},
		{&m.DBQueriesTotal, "db.client.queries.count", "Total number of database queries"},
		{&m.OrdersCreated, "orders_created_total", "Total number of orders created"},
		{&m.OrderStatusTransitions, "order_status_transitions_total", "Total number of applied order status transitions"},
		{&m.StockRejections, "stock_rejections_total", "Total number of requests rejected for insufficient stock"},
		{&m.ProductsViewed, "products_viewed_total", "Total number of product views"},
		{&m.CacheHits, "cache_hits_total", "Total number of cache hits"},
		{&m.CacheMisses, "cache_misses_total", "Total number of cache misses"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1")); err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	gauges := []struct {
		dst  *metric.Int64Gauge
		name string
		desc string
	}{
		{&m.CartItemsCount, "cart_items_count", "Current number of items in user carts"},
		{&m.InventoryLevel, "inventory_level", "Current inventory level for products"},
		{&m.ActiveUsersCount, "active_users_count", "Currently active users"},
		{&m.ActiveCartsCount, "active_carts_count", "Number of active carts with items"},
	}
	for _, g := range gauges {
		if *g.dst, err = meter.Int64Gauge(g.name, metric.WithDescription(g.desc), metric.WithUnit("1")); err != nil {
			return nil, fmt.Errorf("failed to create %s gauge: %w", g.name, err)
		}
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	if m.DBQueryDuration, err = meter.Float64Histogram(
		"db.client.queries.duration",
		metric.WithDescription("Database query duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create db duration histogram: %w", err)
	}

	if m.RevenueTotal, err = meter.Float64Counter(
		"revenue_total",
		metric.WithDescription("Total revenue generated"),
		metric.WithUnit("USD"),
	); err != nil {
		return nil, fmt.Errorf("failed to create revenue counter: %w", err)
	}

	return m, nil
}

// WithServiceName adds service.name to attributes
func (m *AppMetrics) WithServiceName(attrs []attribute.KeyValue) []attribute.KeyValue {
	return append(attrs, attribute.String("service.name", m.serviceName))
}

func (m *AppMetrics) attrs(kv ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(m.WithServiceName(kv)...)
}

// RecordDBQuery records database query metrics including the SQL statement
func (m *AppMetrics) RecordDBQuery(ctx context.Context, operation, table, statement string, start time.Time, success bool) {
	duration := time.Since(start).Milliseconds()

	status := "success"
	if !success {
		status = "error"
	}

	opt := m.attrs(
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
		attribute.String("db.statement", statement),
		attribute.String("db.system", m.dbSystem),
		attribute.String("status", status),
	)
	m.DBQueriesTotal.Add(ctx, 1, opt)
	m.DBQueryDuration.Record(ctx, float64(duration), opt)
}

// RecordOrderCreated counts a committed order and its revenue.
func (m *AppMetrics) RecordOrderCreated(ctx context.Context, lines int, revenue float64) {
	m.OrdersCreated.Add(ctx, 1, m.attrs(
		attribute.String("order_status", "pending"),
		attribute.Int("order_lines", lines),
	))
	m.RevenueTotal.Add(ctx, revenue, m.attrs(attribute.String("order_status", "pending")))
}

// RecordStatusTransition counts an applied order status change.
func (m *AppMetrics) RecordStatusTransition(ctx context.Context, from, to string) {
	m.OrderStatusTransitions.Add(ctx, 1, m.attrs(
		attribute.String("from_status", from),
		attribute.String("to_status", to),
	))
}

// RecordStockRejection counts a request refused because stock was short.
// source names the operation, e.g. "cart" or "order".
func (m *AppMetrics) RecordStockRejection(ctx context.Context, productID int64, source string) {
	m.StockRejections.Add(ctx, 1, m.attrs(
		attribute.Int64("product_id", productID),
		attribute.String("source", source),
	))
}

// RecordInventoryLevel reports the stock of a product after a write.
func (m *AppMetrics) RecordInventoryLevel(ctx context.Context, productID int64, quantity int) {
	m.InventoryLevel.Record(ctx, int64(quantity), m.attrs(attribute.Int64("product_id", productID)))
}

// RecordCacheLookup counts a product cache hit or miss.
func (m *AppMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if hit {
		m.CacheHits.Add(ctx, 1, m.attrs())
		return
	}
	m.CacheMisses.Add(ctx, 1, m.attrs())
}

// parseHeaders parses header string in format "key1=value1,key2=value2"
// and returns a map of headers
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}

	pairs := strings.Split(headerStr, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}
