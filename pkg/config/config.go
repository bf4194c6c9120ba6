// Package config loads application configuration from environment
// variables. Services receive the relevant sections at construction;
// nothing reads the environment after startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/taskhive/taskhive/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Billing       BillingConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis configuration for the notification queue
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Enabled  bool
}

// BillingConfig holds billing defaults passed into the subscription and
// payment services
type BillingConfig struct {
	Currency          string
	InvoiceDueDays    int
	DefaultTrialDays  int
	TaxRatePercent    float64
	SweepBatchSize    int
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Billing:       loadBillingConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TASKHIVE_HOST", "0.0.0.0"),
		Port:            getEnv("TASKHIVE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TASKHIVE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TASKHIVE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TASKHIVE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TASKHIVE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TASKHIVE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("TASKHIVE_POSTGRES_URL", "postgres://localhost/taskhive?sslmode=disable"),
		MaxOpenConns: getEnvInt("TASKHIVE_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("TASKHIVE_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("TASKHIVE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("TASKHIVE_REDIS_URL", "localhost:6379"),
		Password: getEnv("TASKHIVE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("TASKHIVE_REDIS_DB", 0),
		Enabled:  getEnvBool("TASKHIVE_REDIS_ENABLED", true),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		Currency:         getEnv("TASKHIVE_BILLING_CURRENCY", "USD"),
		InvoiceDueDays:   getEnvInt("TASKHIVE_INVOICE_DUE_DAYS", 14),
		DefaultTrialDays: getEnvInt("TASKHIVE_DEFAULT_TRIAL_DAYS", 14),
		TaxRatePercent:   getEnvFloat("TASKHIVE_TAX_RATE_PERCENT", 0),
		SweepBatchSize:   getEnvInt("TASKHIVE_SWEEP_BATCH_SIZE", 500),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("TASKHIVE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("TASKHIVE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Billing.Currency == "" {
		return fmt.Errorf("billing currency is required")
	}
	if c.Billing.InvoiceDueDays <= 0 {
		return fmt.Errorf("invoice due days must be positive")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when redis is enabled")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
