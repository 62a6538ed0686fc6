package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/orderportal/api/controllers"
	"github.com/angelmondragon/orderportal/api/middleware"
	"github.com/angelmondragon/orderportal/internal/balancerequests"
	"github.com/angelmondragon/orderportal/internal/cart"
	"github.com/angelmondragon/orderportal/internal/checkout"
	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/internal/notifications"
	"github.com/angelmondragon/orderportal/internal/orders"
	product "github.com/angelmondragon/orderportal/internal/products"
	"github.com/angelmondragon/orderportal/internal/stats"
	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/logger"
	pkgredis "github.com/angelmondragon/orderportal/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	// Readiness lists dependencies pinged by /health/ready.
	Readiness   map[string]controllers.Pinger
	Tokens      middleware.TokenVerifier
	Idempotency pkgredis.IdempotencyStore
	Metrics     http.Handler

	Products        product.Service
	Checkout        checkout.Service
	Cart            cart.Service
	Orders          orders.Service
	Ledger          ledger.Service
	BalanceRequests balancerequests.Service
	Notifications   notifications.Service
	Stats           stats.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Tokens, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Get("/products", controllers.ListProducts(deps.Products, logg))
		r.Get("/products/{productId}", controllers.ProductDetail(deps.Products, logg))

		r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Patch("/items/{itemId}", controllers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(deps.Cart, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(deps.Orders, logg))
		})

		r.Route("/balance", func(r chi.Router) {
			r.Get("/", controllers.BalanceSummary(deps.Ledger, logg))
			r.Get("/transactions", controllers.BalanceTransactions(deps.Ledger, logg))
			r.Get("/requests", controllers.ListMyDepositRequests(deps.BalanceRequests, logg))
			r.Post("/requests", controllers.CreateDepositRequest(deps.BalanceRequests, logg))
		})

		r.Get("/stats/me", controllers.MyStats(deps.Stats, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminListOrders(deps.Orders, logg))
				r.Post("/{orderId}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
				r.Post("/{orderId}/cancel", controllers.CancelOrder(deps.Orders, logg))
			})
			r.Route("/balance/requests", func(r chi.Router) {
				r.Get("/", controllers.AdminPendingDepositRequests(deps.BalanceRequests, logg))
				r.Post("/{requestId}/resolve", controllers.AdminResolveDepositRequest(deps.BalanceRequests, logg))
			})
			r.Post("/users/{userId}/balance", controllers.AdminAdjustBalance(deps.BalanceRequests, logg))
			r.Get("/users/{userId}/stats", controllers.AdminUserOverview(deps.Stats, logg))
			r.Route("/stats", func(r chi.Router) {
				r.Get("/overview", controllers.AdminStatsOverview(deps.Stats, logg))
				r.Get("/sales", controllers.AdminSalesStats(deps.Stats, logg))
				r.Get("/products", controllers.AdminProductStats(deps.Stats, logg))
				r.Get("/users", controllers.AdminUserStats(deps.Stats, logg))
			})
		})
	})

	return r
}
