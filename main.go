package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/storefront/ecommerce-go-app/internal/api"
	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/cache"
	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/events"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
	"github.com/storefront/ecommerce-go-app/internal/services"
	"github.com/storefront/ecommerce-go-app/pkg/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize OpenTelemetry metrics
	ctx := context.Background()
	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("error shutting down meter provider", "error", err)
		}
	}()

	// Initialize database
	database, err := db.NewDB("mysql", cfg.GetDSN(), meterProvider.Meter(cfg.OTELServiceName), cfg.OTELServiceName)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if schemaSQL, err := os.ReadFile("schema.sql"); err != nil {
		slog.Warn("could not read schema.sql, assuming the schema exists", "error", err)
	} else if err := database.InitSchema(ctx, string(schemaSQL)); err != nil {
		slog.Warn("could not initialize schema, assuming it exists", "error", err)
	}

	productCache, closeCache := newProductCache(ctx, cfg)
	defer closeCache()

	publisher := newPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Error("error closing event publisher", "error", err)
		}
	}()

	// Initialize services
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	inventory := services.NewInventory(appMetrics)
	userService := services.NewUserService(database, appMetrics, auth.NewHasher(cfg.BcryptCost), tokens)
	productService := services.NewProductService(database, appMetrics, productCache, inventory)
	categoryService := services.NewCategoryService(database, appMetrics, productService)
	cartService := services.NewCartService(database, appMetrics)
	orderService := services.NewOrderService(database, appMetrics, inventory, productCache, publisher)

	app := api.NewApp(database, appMetrics, tokens, userService, productService, categoryService, cartService, orderService)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go cartService.MonitorActiveCarts(monitorCtx, 30*time.Second)
	go database.MonitorPool(monitorCtx, 15*time.Second)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      otelhttp.NewHandler(app.Handler(), cfg.OTELServiceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "otlp_endpoint", cfg.OTELExporterOTLPEndpoint, "metrics_enabled", cfg.MetricsEnabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exited")
	return nil
}

// newProductCache uses Redis when REDIS_ADDR is set and reachable, the
// in-process cache otherwise.
func newProductCache(ctx context.Context, cfg *config.Config) (cache.ProductCache, func()) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache(cfg.ProductCacheTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, using in-process product cache", "addr", cfg.RedisAddr, "error", err)
		client.Close()
		return cache.NewMemoryCache(cfg.ProductCacheTTL), func() {}
	}

	slog.Info("product cache backed by redis", "addr", cfg.RedisAddr)
	return cache.NewRedisCache(client, cache.WithTTL(cfg.ProductCacheTTL)), func() { client.Close() }
}

func newPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewLogPublisher(slog.Default())
	}
	slog.Info("publishing order events to kafka", "brokers", cfg.KafkaBrokers, "topic_prefix", cfg.KafkaTopicPrefix)
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
}
