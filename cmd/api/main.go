package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pay/internal/auth"
	"github.com/noah-isme/backend-pay/internal/common"
	"github.com/noah-isme/backend-pay/internal/config"
	"github.com/noah-isme/backend-pay/internal/events"
	"github.com/noah-isme/backend-pay/internal/health"
	"github.com/noah-isme/backend-pay/internal/obs"
	"github.com/noah-isme/backend-pay/internal/payment"
	"github.com/noah-isme/backend-pay/internal/ratelimit"
	"github.com/noah-isme/backend-pay/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "pay")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pay-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if envBool("DB_MIGRATE_ON_BOOT", true) {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "pay-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	authMiddleware := auth.Middleware{
		Verifier: auth.Verifier{
			Secret: []byte(cfg.JWTSecret),
			Validator: auth.TokenValidator{
				Issuer:    cfg.AuthIssuer,
				Audience:  cfg.AuthAudience,
				ClockSkew: 30 * time.Second,
			},
		},
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	bus := &events.Bus{
		Store:     &events.PostgresStore{Pool: pool},
		Notifiers: []events.Notifier{events.LogNotifier{Log: logger}},
	}

	breaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).
		WithTarget("razorpay").
		WithLogger(logger)
	gatewayHTTP := &resilience.HTTPClient{
		Client:      payment.NewGatewayHTTPClient(cfg.GatewayTimeout),
		Breaker:     breaker,
		BaseBackoff: cfg.GatewayRetryBase,
		MaxAttempts: cfg.GatewayRetryMaxAttempts,
		Jitter:      cfg.GatewayRetryJitter,
		Timeout:     cfg.GatewayTimeout,
	}
	provider := payment.Razorpay{
		KeyID:     cfg.GatewayKeyID,
		KeySecret: cfg.GatewayKeySecret,
		BaseURL:   cfg.GatewayBaseURL,
		HTTP:      gatewayHTTP,
	}

	paymentSvc := &payment.Service{
		Store:          &payment.PostgresStore{Pool: pool},
		Provider:       provider,
		Verifier:       payment.SignatureVerifier{Secret: []byte(cfg.GatewayKeySecret)},
		Receipts:       payment.ReceiptGenerator{Prefix: cfg.ReceiptPrefix},
		Bus:            bus,
		Expiry:         payment.AsynqEnqueuer{Client: asynqClient},
		Log:            logger,
		Currency:       cfg.Currency,
		MaxAmountMinor: cfg.MaxOrderAmount,
		IntentTTL:      cfg.IntentTTL,
		GatewayTimeout: cfg.GatewayTimeout,
	}
	paymentHandler := &payment.Handler{Svc: paymentSvc, Validate: validator.New()}
	webhookHandler := payment.Webhook{
		Svc:    paymentSvc,
		Secret: []byte(cfg.GatewayWebhookKey),
		Log:    logger,
	}

	publicLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return "pay:" + common.ClientIP(r) },
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limiter")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      health.Probes{Pool: pool, Redis: redisClient},
		Gateway:      breaker,
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Route("/v1/payments", func(p chi.Router) {
		p.Group(func(g chi.Router) {
			g.Use(authMiddleware.RequireAuth)
			g.With(idem.Middleware).Post("/orders", paymentHandler.Create)
			g.Get("/orders/{orderId}", paymentHandler.Status)
			g.Post("/orders/{orderId}/cancel", paymentHandler.Cancel)
		})
		p.Group(func(g chi.Router) {
			g.Use(publicLimiter.Middleware)
			g.Post("/confirm", paymentHandler.Confirm)
			g.Post("/webhook", webhookHandler.Handle)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

// runMigrations applies pending schema migrations using the pgx driver.
func runMigrations(databaseURL string) error {
	url := databaseURL
	if strings.HasPrefix(url, "postgres://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgres://")
	} else if strings.HasPrefix(url, "postgresql://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	}
	m, err := migrate.New(envOrDefault("DB_MIGRATIONS_SOURCE", "file://db/migrations"), url)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
