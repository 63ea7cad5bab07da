package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration from environment variables
type Config struct {
	// Application
	AppPort string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBDSN      string // Full DSN, overrides the individual DB_* fields

	// Authentication
	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	// Product cache
	RedisAddr       string // Empty means the in-process cache is used
	RedisPassword   string
	RedisDB         int
	ProductCacheTTL time.Duration

	// Order events
	KafkaBrokers     []string // Empty means events are only logged
	KafkaTopicPrefix string

	// OpenTelemetry
	MetricsEnabled            bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPHeaders   string // e.g. signoz-ingestion-key=<key>
	OTELExporterOTLPInsecure  bool   // true for http://, false for https://
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string
}

// LoadConfig loads configuration from .env file and environment variables with defaults
func LoadConfig() *Config {
	// .env is optional; only report real load errors
	if err := godotenv.Load(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			slog.Warn("error loading .env file", "error", err)
		}
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "storefront"),
		DBDSN:      getEnv("DB_DSN", ""),

		JWTSecret:  getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTTTL:     getEnvDuration("JWT_TTL", time.Hour),
		BcryptCost: getEnvInt("BCRYPT_COST", 10),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		ProductCacheTTL: getEnvDuration("PRODUCT_CACHE_TTL", 5*time.Minute),

		KafkaBrokers:     getEnvList("KAFKA_BROKERS"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),

		MetricsEnabled:            getEnvBool("METRICS_ENABLED", true),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPHeaders:   getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "storefront-api"),
		OTELServiceVersion:        getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: getEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),
	}
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if _, err := strconv.Atoi(c.AppPort); err != nil {
		return fmt.Errorf("APP_PORT must be numeric, got %q", c.AppPort)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	return nil
}

// GetDSN returns the MySQL DSN string. clientFoundRows makes RowsAffected
// count matched rows, which the conditional updates rely on.
func (c *Config) GetDSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4&clientFoundRows=true"
}

// GetAppPortInt returns the application port as an integer
func (c *Config) GetAppPortInt() int {
	port, err := strconv.Atoi(c.AppPort)
	if err != nil {
		return 8080
	}
	return port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if value == "true" || value == "1" || value == "yes" {
			return true
		}
		return false
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("ignoring non-numeric config value", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
