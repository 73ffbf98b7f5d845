package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	CORSAllowedOrigins []string

	// Gateway credentials. The webhook secret defaults to the key secret when
	// not configured separately.
	GatewayKeyID      string
	GatewayKeySecret  string
	GatewayWebhookKey string
	GatewayBaseURL    string

	ReceiptPrefix  string
	Currency       string
	MaxOrderAmount int64

	IntentTTL      time.Duration
	GatewayTimeout time.Duration

	GatewayRetryMaxAttempts int
	GatewayRetryBase        time.Duration
	GatewayRetryJitter      float64
	CircuitMinRequests      int
	CircuitFailureRate      float64
	CircuitOpenFor          time.Duration

	IdempotencyTTL  time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int

	AuthIssuer   string
	AuthAudience string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),
		JWTSecret:   k.String("JWT_SECRET"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		GatewayKeyID:      k.String("RAZORPAY_KEY_ID"),
		GatewayKeySecret:  k.String("RAZORPAY_KEY_SECRET"),
		GatewayWebhookKey: k.String("RAZORPAY_WEBHOOK_SECRET"),
		GatewayBaseURL:    valueOrDefault(k.String("RAZORPAY_BASE_URL"), "https://api.razorpay.com"),

		ReceiptPrefix:  valueOrDefault(k.String("PAY_RECEIPT_PREFIX"), "order_"),
		Currency:       valueOrDefault(k.String("PAY_CURRENCY"), "INR"),
		MaxOrderAmount: parseInt64(k.String("PAY_MAX_AMOUNT_MINOR"), 50_000_000),

		IntentTTL:      parseDuration(k.String("PAY_INTENT_TTL"), "15m"),
		GatewayTimeout: parseDuration(k.String("GATEWAY_TIMEOUT"), "10s"),

		GatewayRetryMaxAttempts: parseInt(k.String("GATEWAY_RETRY_MAX_ATTEMPTS"), 3),
		GatewayRetryBase:        parseDuration(k.String("GATEWAY_RETRY_BASE"), "200ms"),
		GatewayRetryJitter:      parseFloat(k.String("GATEWAY_RETRY_JITTER"), 0.2),
		CircuitMinRequests:      parseInt(k.String("CIRCUIT_GATEWAY_MIN_REQUESTS"), 10),
		CircuitFailureRate:      parseFloat(k.String("CIRCUIT_GATEWAY_FAILURE_RATE"), 0.5),
		CircuitOpenFor:          parseDuration(k.String("CIRCUIT_GATEWAY_OPEN_FOR"), "30s"),

		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 120),

		AuthIssuer:   k.String("AUTH_ISSUER"),
		AuthAudience: k.String("AUTH_AUDIENCE"),
	}

	if cfg.GatewayWebhookKey == "" {
		cfg.GatewayWebhookKey = cfg.GatewayKeySecret
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.GatewayKeySecret == "" {
		return nil, errors.New("RAZORPAY_KEY_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}

func parseInt64(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return f
}
