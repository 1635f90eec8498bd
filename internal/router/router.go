package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/kiwari-pos/ordering/internal/handler"
	mw "github.com/kiwari-pos/ordering/internal/middleware"
	"github.com/kiwari-pos/ordering/internal/ws"
)

// Config carries everything the router wires together.
type Config struct {
	Logger      *zap.Logger
	JWTSecret   string
	CORSOrigins []string
	Credentials bool

	Orders      handler.OrderService
	Reconciler  handler.Reconciler
	OrderReader handler.OrderReader
	GatewayKey  string

	Hub         *ws.Hub
	RateLimiter *mw.RateLimiter
	// Ready reports storage health for /health. Nil means always ready.
	Ready func(ctx context.Context) error

	MeterProvider metric.MeterProvider
}

// New creates a Chi router with all application routes wired up.
// Applies authentication and rate limiting to the API routes.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(mw.InjectLogger(cfg.Logger))
	r.Use(mw.LogRequests)
	r.Use(mw.Recovery)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: cfg.Credentials,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(cfg.Hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		orderHandler := handler.NewOrderHandler(cfg.Orders)
		paymentHandler := handler.NewPaymentHandler(cfg.Reconciler, cfg.OrderReader, cfg.GatewayKey)
		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)

			// Payments (nested under orders)
			r.Route("/{id}/payments", paymentHandler.RegisterRoutes)
		})
	})

	var opts []otelhttp.Option
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}
	return otelhttp.NewHandler(r, "ordering", opts...)
}
