// Package config reads service settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	ServiceName string
	HTTPPort    string
	LogLevel    string

	CartStore        string
	MongoURI         string
	MongoDBName      string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartCacheTTL  time.Duration
	EventLogTTL   time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	ClientURL           string
	Currency            string

	JWTSecret   string
	CORSOrigins []string

	KafkaBrokers string
	KafkaTopic   string

	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxWebhookBodySize int64
}

// Load reads .env when present, then the process environment, and validates
// the result. Variables already set in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "cart-api"),
		HTTPPort:    getEnv("PORT", "5000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		CartStore:   strings.ToLower(getEnv("CART_STORE", StoreMongo)),
		MongoURI:    getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "cartdb"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		ClientURL:           strings.TrimRight(getEnv("CLIENT_URL", "http://localhost:5173"), "/"),
		Currency:            strings.ToLower(getEnv("CHECKOUT_CURRENCY", "usd")),

		JWTSecret: os.Getenv("JWT_SECRET"),

		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "checkout-completed"),

		MaxWebhookBodySize: 65536,
	}
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", cfg.ClientURL))

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		errs = append(errs, fmt.Errorf("REDIS_DB: %w", err))
	}
	cfg.MongoMaxPoolSize = getUint("MONGO_MAX_POOL_SIZE", 100, &errs)
	cfg.MongoMinPoolSize = getUint("MONGO_MIN_POOL_SIZE", 10, &errs)
	cfg.CartCacheTTL = getDuration("CART_CACHE_TTL", 15*time.Minute, &errs)
	cfg.EventLogTTL = getDuration("WEBHOOK_EVENT_TTL", 72*time.Hour, &errs)
	cfg.RequestTimeout = getDuration("REQUEST_TIMEOUT", 30*time.Second, &errs)
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs)

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) SuccessURL() string { return c.ClientURL + "/checkout/success" }

func (c *Config) CancelURL() string { return c.ClientURL + "/checkout/cancel" }

func (c *Config) validate() []error {
	var errs []error
	if c.CartStore != StoreMongo && c.CartStore != StoreMemory {
		errs = append(errs, fmt.Errorf("CART_STORE must be %q or %q, got %q", StoreMongo, StoreMemory, c.CartStore))
	}
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.MongoMinPoolSize > c.MongoMaxPoolSize {
		errs = append(errs, fmt.Errorf("MONGO_MIN_POOL_SIZE (%d) exceeds MONGO_MAX_POOL_SIZE (%d)",
			c.MongoMinPoolSize, c.MongoMaxPoolSize))
	}
	if len(c.Currency) != 3 {
		errs = append(errs, fmt.Errorf("CHECKOUT_CURRENCY must be an ISO 4217 code, got %q", c.Currency))
	}
	return errs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	if d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be positive", key))
		return defaultValue
	}
	return d
}

func getUint(key string, defaultValue uint64, errs *[]error) uint64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive integer, got %q", key, raw))
		return defaultValue
	}
	return n
}

func splitList(csv string) []string {
	var out []string
	for _, v := range strings.Split(csv, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
