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

	"github.com/fjod/go_cart/internal/cache"
	"github.com/fjod/go_cart/internal/config"
	"github.com/fjod/go_cart/internal/events"
	h "github.com/fjod/go_cart/internal/http"
	"github.com/fjod/go_cart/internal/payment"
	"github.com/fjod/go_cart/internal/repository"
	s "github.com/fjod/go_cart/internal/service"
	"github.com/fjod/go_cart/pkg/circuitbreaker"
	"github.com/fjod/go_cart/pkg/logger"
	"github.com/fjod/go_cart/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v83"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("cart api stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Incoming traceparent headers end up on log records.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Info("redis ping succeeded", "addr", cfg.RedisAddr)

	stripe.Key = cfg.StripeSecretKey

	publisher := events.New(cfg.KafkaTopic, events.ParseBrokers(cfg.KafkaBrokers))
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("closing event publisher failed", "error", err)
		}
	}()

	m := metrics.NewServerMetrics("cart_api")
	cartCache := cache.NewRedisCache(redisClient, cache.WithTTL(cfg.CartCacheTTL, cfg.CartCacheTTL/3))
	provider := payment.NewStripeProvider(cfg.StripeWebhookSecret, circuitbreaker.DefaultSettings("stripe-checkout"), log)

	carts := s.NewCartService(repo, cartCache, log)
	checkout := s.NewCheckoutService(repo, provider, s.CheckoutOptions{
		Currency:   cfg.Currency,
		SuccessURL: cfg.SuccessURL(),
		CancelURL:  cfg.CancelURL(),
	}, m, log)
	reconciler := s.NewWebhookReconciler(repo, cartCache, cache.NewRedisEventLog(redisClient, cfg.EventLogTTL),
		provider, publisher, cfg.Currency, m, log)

	router := h.NewRouter(h.RouterConfig{
		Cart:           h.NewCartHandler(carts, cfg.RequestTimeout),
		Checkout:       h.NewCheckoutHandler(checkout, reconciler, cfg.RequestTimeout, cfg.MaxWebhookBodySize),
		Metrics:        m,
		Logger:         log,
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowedOrigins: cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("cart api listening", "port", cfg.HTTPPort, "store", cfg.CartStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, log *slog.Logger) (repository.CartRepository, func(), error) {
	if cfg.CartStore == config.StoreMemory {
		log.Warn("using in-memory cart store, carts are lost on restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := repository.ConnectMongoDB(connectCtx, cfg.MongoURI, cfg.MongoDBName, repository.PoolSize{
		Max: cfg.MongoMaxPoolSize,
		Min: cfg.MongoMinPoolSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	repo := repository.NewMongoRepository(db)
	if err := repo.CreateIndexes(connectCtx); err != nil {
		_ = db.Client().Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	log.Info("connected to MongoDB", "database", cfg.MongoDBName)

	closeFn := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Client().Disconnect(disconnectCtx); err != nil {
			log.Warn("mongo disconnect failed", "error", err)
		}
	}
	return repo, closeFn, nil
}
