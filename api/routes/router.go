package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quickcart/quickcart-backend/api/controllers"
	ordercontrollers "github.com/quickcart/quickcart-backend/api/controllers/orders"
	"github.com/quickcart/quickcart-backend/api/middleware"
	"github.com/quickcart/quickcart-backend/internal/cart"
	checkoutsvc "github.com/quickcart/quickcart-backend/internal/checkout"
	"github.com/quickcart/quickcart-backend/internal/orders"
	"github.com/quickcart/quickcart-backend/pkg/config"
	"github.com/quickcart/quickcart-backend/pkg/enums"
	"github.com/quickcart/quickcart-backend/pkg/logger"
	"github.com/quickcart/quickcart-backend/pkg/redis"
)

// Deps carries everything the router mounts. Redis and Metrics may be nil;
// idempotency, rate limiting and /metrics are then disabled. Idempotency
// overrides the Redis-backed replay store when set.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       *redis.Client
	Idempotency redis.IdempotencyStore
	Metrics     prometheus.Gatherer
	Cart        cart.Service
	Checkout    checkoutsvc.Service
	Orders      orders.Service
	Stock       controllers.StockAdjuster
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	var (
		idempotencyStore redis.IdempotencyStore
		ready            = map[string]controllers.Pinger{}
	)
	if deps.DB != nil {
		ready["db"] = deps.DB
	}

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.HTTP.CheckoutRateLimit, cfg.HTTP.CheckoutRateWindow)
	checkoutLimit := middleware.RateLimit(checkoutPolicy, nil, logg)
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		ready["redis"] = deps.Redis
		checkoutLimit = middleware.RateLimit(checkoutPolicy, deps.Redis, logg)
	}
	if deps.Idempotency != nil {
		idempotencyStore = deps.Idempotency
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, ready, logg))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Principal(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.EnsureSession(sessionMaxAge(cfg), cfg.HTTP.SecureCookies, logg))
			r.Get("/", controllers.CartShow(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Put("/items/{itemId}", controllers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(deps.Cart, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(logg))
			keyed := middleware.Idempotency(idempotencyStore, cfg.Orders.IdempotencyTTL, logg)

			r.With(checkoutLimit, keyed).Post("/checkout", controllers.Checkout(deps.Checkout, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
				r.With(keyed).Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
			r.Patch("/orders/{orderId}/status", ordercontrollers.AdminUpdateStatus(deps.Orders, logg))
			r.Patch("/products/{productId}/stock", controllers.AdminAdjustStock(deps.Stock, logg))
		})
	})

	return r
}

func sessionMaxAge(cfg *config.Config) time.Duration {
	if cfg.Orders.SessionCookieMaxAge > 0 {
		return cfg.Orders.SessionCookieMaxAge
	}
	return 30 * 24 * time.Hour
}
