package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psecars/merch-backend/api/controllers"
	"github.com/psecars/merch-backend/api/middleware"
	"github.com/psecars/merch-backend/internal/cart"
	"github.com/psecars/merch-backend/internal/catalog"
	"github.com/psecars/merch-backend/internal/orders"
	"github.com/psecars/merch-backend/pkg/config"
	"github.com/psecars/merch-backend/pkg/db"
	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/metrics"
	"github.com/psecars/merch-backend/pkg/redis"
	"github.com/psecars/merch-backend/pkg/session"
)

type attributeStore interface {
	GetAttribute(ctx context.Context, sessionID, name string) (string, error)
	SetAttribute(ctx context.Context, sessionID, name, value string) error
}

type fixedWindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// sessionAttributes and rateLimiter keep a nil client out of a non-nil interface.
func sessionAttributes(store *session.Store) attributeStore {
	if store == nil {
		return nil
	}
	return store
}

func rateLimiter(client *redis.Client) fixedWindowLimiter {
	if client == nil {
		return nil
	}
	return client
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions *session.Store,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	cartService cart.Service,
	ordersService orders.Service,
	catalogService catalog.Service,
) http.Handler {
	r := chi.NewRouter()
	if cfg.HTTP.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.AccessLog(logg, httpMetrics),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["db"] = dbP
	}

	var idempotencyStore redis.IdempotencyStore
	if redisClient != nil {
		idempotencyStore = redisClient
		readiness["redis"] = redisClient
	}

	cartSession := middleware.CartSession(middleware.CartSessionOptions{
		CartCookie:   cfg.Cart.SessionCookie,
		ServerCookie: cfg.Cart.ServerCookie,
		Attribute:    cfg.Cart.SessionAttribute,
		MaxAge:       cfg.Cart.TTL,
		Secure:       cfg.Cart.SecureCookies,
	}, sessionAttributes(sessions), logg)
	idempotent := func(ttl time.Duration) func(http.Handler) http.Handler {
		return middleware.Idempotency(idempotencyStore, logg, ttl)
	}
	checkoutLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.CheckoutWindow, cfg.RateLimit.CheckoutLimit),
		rateLimiter(redisClient),
		logg,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(cartSession)
		r.Get("/", controllers.CartGet(cartService, logg))
		r.Get("/summary", controllers.CartSummary(cartService, logg))
		r.Get("/count", controllers.CartCount(cartService, logg))
		r.Get("/quantity", controllers.CartQuantity(cartService, logg))
		r.Get("/validate", controllers.CartValidate(cartService, logg))
		r.Get("/checkout", controllers.CartCheckoutPreview(cartService, logg))
		r.Post("/items", controllers.CartAddItem(cartService, logg))
		r.Put("/items/{productId}", controllers.CartUpdateItem(cartService, logg))
		r.Delete("/items/{productId}", controllers.CartRemoveItem(cartService, logg))
		r.Delete("/", controllers.CartClear(cartService, logg))
		r.Put("/customer", controllers.CartUpdateCustomer(cartService, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(cartSession)
		r.Get("/", controllers.OrdersList(ordersService, logg))
		r.With(idempotent(middleware.OrderIdempotencyTTL)).Post("/", controllers.OrdersCreate(ordersService, logg))
		r.With(checkoutLimit, idempotent(middleware.CheckoutIdempotencyTTL)).Post("/from-cart", controllers.OrdersCheckout(ordersService, logg))
		r.Get("/customer/{customerEmail}", controllers.OrdersByCustomer(ordersService, logg))
		r.Get("/{orderId}", controllers.OrdersGet(ordersService, logg))
		r.Put("/{orderId}/status", controllers.OrdersUpdateStatus(ordersService, logg))
		r.With(idempotent(middleware.CheckoutIdempotencyTTL)).Post("/{orderId}/cancel", controllers.OrdersCancel(ordersService, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.CatalogListProducts(catalogService, logg))
		r.Get("/{productId}", controllers.CatalogGetProduct(catalogService, logg))
		r.Get("/{productId}/availability", controllers.CatalogAvailability(catalogService, logg))
	})

	r.Route("/api/v1/categories", func(r chi.Router) {
		r.Get("/", controllers.CatalogListCategories(catalogService, logg))
		r.Get("/{categoryId}", controllers.CatalogGetCategory(catalogService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.With(idempotent(middleware.OrderIdempotencyTTL)).Post("/products", controllers.AdminCreateProduct(catalogService, logg))
		r.Put("/products/{productId}/stock", controllers.AdminUpdateStock(catalogService, logg))
		r.With(idempotent(middleware.OrderIdempotencyTTL)).Post("/categories", controllers.AdminCreateCategory(catalogService, logg))
	})

	return r
}
