package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-storefront/api/controllers"
	"github.com/angelmondragon/packfinderz-storefront/api/middleware"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

// Deps groups what the router hands to controllers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Store    controllers.Pinger
	Catalog  *products.Catalog
	Sessions controllers.Sessions
	// Gatherer serves /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
	)
	if len(cfg.HTTP.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.HTTP.CORSOrigins))
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Store))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(deps.Catalog, logg))
			r.Get("/{productId}", controllers.ProductDetail(deps.Catalog, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.User(logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(deps.Sessions, logg))
				r.Delete("/", controllers.CartClear(deps.Sessions, logg))
				r.Post("/items", controllers.CartAddItem(deps.Sessions, deps.Catalog, logg))
				r.Patch("/items/{productId}", controllers.CartUpdateItem(deps.Sessions, logg))
				r.Delete("/items/{productId}", controllers.CartRemoveItem(deps.Sessions, logg))
			})

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", controllers.FavoritesList(deps.Sessions, logg))
				r.Post("/refresh", controllers.FavoritesRefresh(deps.Sessions, logg))
				r.Post("/{productId}/toggle", controllers.FavoritesToggle(deps.Sessions, deps.Catalog, logg))
			})

			r.Post("/checkout", controllers.Checkout(deps.Sessions, logg))
			r.Post("/checkout/{checkoutKey}/redirect", controllers.CheckoutRedirect(deps.Sessions, logg))
			r.Post("/orders/{orderId}/cancel", controllers.CancelOrder(deps.Sessions, logg))
		})
	})

	return r
}
