// Package config loads process configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr     string
	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	// DefaultGateway names the payment collaborator used when a
	// subscription does not carry one.
	DefaultGateway string

	StripeWebhookSecret string
	AdyenHMACKey        string
	BraintreePrivateKey string

	SweepRunIntervalHours int
	SweepBatchSize        int
	SweepAbandonAfterDays int

	// WebhookRateLimitRPS caps gateway webhook deliveries per second
	// per gateway; zero disables limiting.
	WebhookRateLimitRPS   float64
	WebhookRateLimitBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "commercestore"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "commercestore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		DefaultGateway:    getenv("DEFAULT_GATEWAY", "manual"),

		StripeWebhookSecret: getenv("STRIPE_WEBHOOK_SECRET", ""),
		AdyenHMACKey:        getenv("ADYEN_HMAC_KEY", ""),
		BraintreePrivateKey: getenv("BRAINTREE_PRIVATE_KEY", ""),

		SweepRunIntervalHours: getenvInt("SWEEP_RUN_INTERVAL_HOURS", 24),
		SweepBatchSize:        getenvInt("SWEEP_BATCH_SIZE", 50),
		SweepAbandonAfterDays: getenvInt("SWEEP_ABANDON_AFTER_DAYS", 7),

		WebhookRateLimitRPS:   getenvFloat("WEBHOOK_RATE_LIMIT_RPS", 0),
		WebhookRateLimitBurst: getenvInt("WEBHOOK_RATE_LIMIT_BURST", 20),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
