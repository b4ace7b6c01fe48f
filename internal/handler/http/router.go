package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/templamart/internal/service"
	"github.com/utafrali/templamart/pkg/health"
	"github.com/utafrali/templamart/pkg/middleware"
)

// RouterOptions carries the transport settings taken from configuration.
type RouterOptions struct {
	CORS middleware.CORSConfig

	// RateLimit bounds requests per shopper session on the shopper routes.
	RateLimit middleware.RateLimitConfig

	// PprofAllowlist enables /debug/pprof for these networks. Empty disables it.
	PprofAllowlist []string
}

// NewRouter creates a chi router with all shopper routes registered.
func NewRouter(
	shopperService *service.ShopperService,
	healthHandler *health.Handler,
	opts RouterOptions,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(opts.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("shopper"))
	r.Use(middleware.Tracing("shopper"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(opts.PprofAllowlist) > 0 {
		middleware.RegisterPprof(r, opts.PprofAllowlist, logger)
	}

	h := NewShopperHandler(shopperService, logger)

	r.Route("/api/v1/shopper", func(r chi.Router) {
		r.Use(middleware.NoStore())
		r.Use(middleware.RateLimit(opts.RateLimit, logger))
		r.Use(ContentTypeJSON)
		r.Use(SessionFromHeader)

		r.Get("/", h.GetShopper)
		r.Delete("/", h.Forget)
		r.Get("/notices", h.Notices)

		r.Post("/cart/items", h.AddToCart)
		r.Delete("/cart/items/{itemId}", h.RemoveFromCart)
		r.Delete("/cart", h.ClearCart)

		r.Get("/wishlist/{itemId}", h.IsInWishlist)
		r.Post("/wishlist/{itemId}/toggle", h.ToggleWishlist)
	})

	return r
}
