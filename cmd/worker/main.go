package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pay/internal/config"
	"github.com/noah-isme/backend-pay/internal/events"
	"github.com/noah-isme/backend-pay/internal/obs"
	"github.com/noah-isme/backend-pay/internal/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "pay"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := mustInitRedis(ctx, redisOpts, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	bus := &events.Bus{
		Store:     &events.PostgresStore{Pool: pool},
		Notifiers: []events.Notifier{events.LogNotifier{Log: logger}},
	}

	// The worker only closes out expired orders; it never talks to the
	// gateway, so no provider or verifier is wired here.
	paymentSvc := &payment.Service{
		Store: &payment.PostgresStore{Pool: pool},
		Bus:   bus,
		Log:   logger,
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB},
		asynq.Config{
			Concurrency: envInt("WORKER_CONCURRENCY", 5),
			Queues:      map[string]int{"payments": 10},
			Logger:      asynqLogger{logger},
			RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
				return time.Duration(n*n) * time.Second
			},
		},
	)

	mux := asynq.NewServeMux()
	payment.ExpiryWorker{Svc: paymentSvc, Log: logger}.Register(mux)

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info().Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, opts *redis.Options, logger zerolog.Logger) *redis.Client {
	redisClient := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

// asynqLogger adapts zerolog to asynq's logger interface.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug().Msgf("%v", args) }
func (l asynqLogger) Info(args ...any)  { l.log.Info().Msgf("%v", args) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn().Msgf("%v", args) }
func (l asynqLogger) Error(args ...any) { l.log.Error().Msgf("%v", args) }
func (l asynqLogger) Fatal(args ...any) { l.log.Fatal().Msgf("%v", args) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
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
