package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Stripe configuration
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIBase       string
	StripeTimeout       time.Duration

	// Inventory
	GraceWindow   time.Duration
	SweepSchedule string

	// Reconciliation
	ReconcileLockTTL time.Duration

	// Door scanners
	RateLimitPerMinute int
	ScannerKeyHash     string

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Stripe
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeAPIBase:       getEnv("STRIPE_API_BASE", "https://api.stripe.com"),
		StripeTimeout:       getEnvAsDuration("STRIPE_TIMEOUT", "10s"),

		// Inventory
		GraceWindow:   getEnvAsDuration("GRACE_WINDOW", "15m"),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "*/5 * * * *"),

		ReconcileLockTTL: getEnvAsDuration("RECONCILE_LOCK_TTL", "10s"),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
		ScannerKeyHash:     getEnv("SCANNER_KEY_HASH", ""),

		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// PubNubEnabled reports whether realtime notifications can be published.
func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil && duration > 0 {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
