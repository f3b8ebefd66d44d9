package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/avisolabs/aviso/internal/api"
	"github.com/avisolabs/aviso/internal/circuitbreaker"
	"github.com/avisolabs/aviso/internal/config"
	"github.com/avisolabs/aviso/internal/mail"
	"github.com/avisolabs/aviso/internal/metrics"
	"github.com/avisolabs/aviso/internal/notification"
	"github.com/avisolabs/aviso/internal/observ"
	"github.com/avisolabs/aviso/internal/redis"
	"github.com/avisolabs/aviso/internal/store"
	"github.com/avisolabs/aviso/internal/template"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a local development convenience, absence is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting aviso server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("mail_provider", cfg.MailProvider),
	)

	ctx := context.Background()

	// Notification store: Postgres in normal operation, in-memory when
	// the database is unreachable so local development stays possible.
	var notifStore notification.Store
	var pg *store.Postgres
	pg, err = store.NewPostgres(ctx, store.PostgresConfig{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		if cfg.Env == "development" {
			logger.Warn("database unavailable, falling back to in-memory store",
				zap.Error(err),
			)
			notifStore = store.NewMemory()
		} else {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
	} else {
		defer pg.Close()
		notifStore = pg
	}

	// Redis for idempotency and rate limiting. Optional: the API still
	// works without it, just without dedup and limits.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimit,
			Window: cfg.RateLimitWindow,
		})
		defer redisClient.Close()
	}

	transport, err := buildTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("mail"), logger)
	protected := mail.NewProtectedTransport(transport, breaker, logger)

	renderer, err := template.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to load mail templates: %w", err)
	}

	dispatcher := mail.NewDispatcher(renderer, protected, mail.Config{
		From:        cfg.MailFrom,
		PlatformURL: cfg.PlatformURL,
		MaxAttempts: cfg.MailMaxAttempts,
		RetryBase:   cfg.MailRetryBase,
	}, logger)

	svc := notification.NewService(notifStore, logger)

	handler := api.NewHandler(logger, svc, dispatcher, idempotencyService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(api.MetricsMiddleware)
	r.Use(api.RequestLogger(logger))

	r.Group(func(r chi.Router) {
		if rateLimiter != nil {
			r.Use(api.RateLimitMiddleware(rateLimiter, logger))
		}
		handler.Routes(r)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if pg != nil {
			if err := pg.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("database unreachable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

func buildTransport(ctx context.Context, cfg *config.Config, logger *zap.Logger) (mail.Transport, error) {
	switch cfg.MailProvider {
	case config.ProviderSES:
		t, err := mail.NewSESTransport(ctx, cfg.AWSRegion, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SES transport: %w", err)
		}
		return t, nil
	case config.ProviderPostmark:
		t, err := mail.NewPostmarkTransport(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Postmark transport: %w", err)
		}
		return t, nil
	default:
		return mail.NewLogTransport(logger), nil
	}
}
