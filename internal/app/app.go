// Package app wires the order engine into a running HTTP service.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kiwari-pos/ordering/internal/auth"
	"github.com/kiwari-pos/ordering/internal/catalog"
	"github.com/kiwari-pos/ordering/internal/config"
	"github.com/kiwari-pos/ordering/internal/events"
	"github.com/kiwari-pos/ordering/internal/metrics"
	"github.com/kiwari-pos/ordering/internal/middleware"
	"github.com/kiwari-pos/ordering/internal/money"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/payment"
	"github.com/kiwari-pos/ordering/internal/router"
	"github.com/kiwari-pos/ordering/internal/storage/memory"
	"github.com/kiwari-pos/ordering/internal/storage/postgres"
	"github.com/kiwari-pos/ordering/internal/ws"
)

// Store is everything the engine persists.
type Store interface {
	order.Repository
	order.Counter
	catalog.Catalog
	payment.IntentStore
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, t *app.Telemetry, cfg *config.Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	m, err := metrics.New(t.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "metrics")
	}

	store, ready, closeStore, err := openStore(ctx, lg, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	// Live events: WebSocket screens always, the broker when configured.
	hub := ws.NewHub()
	publishers := events.Multi{hub}
	if cfg.Events.AMQPURL != "" {
		broker, closeBroker, err := events.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return errors.Wrap(err, "events broker")
		}
		defer func() { _ = closeBroker() }()
		publishers = append(publishers, broker)
		lg.Info("Publishing order events", zap.String("exchange", cfg.Events.Exchange))
	}

	taxes, err := cfg.Pricing.TaxRates()
	if err != nil {
		return err
	}
	loc, err := cfg.Numbering.Location()
	if err != nil {
		return err
	}
	pricing := order.Pricing{
		Taxes:        taxes,
		RoundOff:     cfg.Pricing.RoundOff,
		RoundingMode: money.RoundingMode(cfg.Pricing.RoundingMode),
	}

	opts := []order.Option{
		order.WithPublisher(publishers),
		order.WithMetrics(m),
	}
	if cfg.Auth.PINHash != "" {
		opts = append(opts, order.WithOverrideVerifier(auth.NewPINVerifier(cfg.Auth.PINHash)))
	}
	numbers := order.NewNumberer(store, loc, m.DegradedNumber)
	orders := order.NewService(store, store, numbers, pricing, opts...)

	gateway := payment.NewHTTPGateway(payment.GatewayConfig{
		BaseURL:   cfg.Gateway.BaseURL,
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		Timeout:   cfg.Gateway.Timeout,
	})
	reconciler := payment.NewReconciler(orders, store, gateway, nil, m, payment.Config{
		Secret:   []byte(cfg.Gateway.KeySecret),
		Currency: cfg.Gateway.Currency,
		Timeout:  cfg.Gateway.Timeout,
	})

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		EntryTTL:          cfg.RateLimit.EntryTTL,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: router.New(router.Config{
			Logger:        lg,
			JWTSecret:     cfg.Auth.JWTSecret,
			CORSOrigins:   cfg.CORS.Origins,
			Credentials:   cfg.CORS.AllowCredentials,
			Orders:        orders,
			Reconciler:    reconciler,
			OrderReader:   orders,
			GatewayKey:    cfg.Gateway.KeyID,
			Hub:           hub,
			RateLimiter:   limiter,
			Ready:         ready,
			MeterProvider: t.MeterProvider(),
		}),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return limiter.Run(ctx) })
	g.Go(func() error {
		// Graceful shutdown: wait for context cancellation, then drain.
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, lg *zap.Logger, cfg config.StorageConfig) (Store, func(context.Context) error, func(), error) {
	if cfg.Driver == "memory" {
		lg.Warn("Using in-memory storage, orders are lost on restart")
		return memory.New(), nil, func() {}, nil
	}

	if cfg.Migrate {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, nil, errors.Wrap(err, "run migrations")
		}
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "create db pool")
	}
	return postgres.New(pool), pool.Ping, pool.Close, nil
}
