package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/packfinderz-storefront/api/controllers"
	"github.com/angelmondragon/packfinderz-storefront/api/routes"
	"github.com/angelmondragon/packfinderz-storefront/internal/backend"
	"github.com/angelmondragon/packfinderz-storefront/internal/cache"
	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/cron"
	"github.com/angelmondragon/packfinderz-storefront/internal/favorites"
	"github.com/angelmondragon/packfinderz-storefront/internal/orders"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/instance"
	"github.com/angelmondragon/packfinderz-storefront/pkg/kvstore"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := kvstore.Open(runCtx, cfg, logg)
	if err != nil {
		logg.Error(runCtx, "failed to open snapshot store", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(context.Background(), "error closing snapshot store", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cacheMetrics := metrics.NewCacheMetrics(registry)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	listings, err := cache.New[*products.Page](cache.Options{
		Name: "product_listings", TTL: cfg.Cache.ProductTTL, MaxSize: cfg.Cache.ProductMaxSize, Metrics: cacheMetrics, Logger: logg,
	})
	if err != nil {
		logg.Error(runCtx, "failed to build listing cache", err)
		os.Exit(1)
	}
	productCache, err := cache.New[*products.Product](cache.Options{
		Name: "products", TTL: cfg.Cache.ProductTTL, MaxSize: cfg.Cache.ProductMaxSize, Metrics: cacheMetrics, Logger: logg,
	})
	if err != nil {
		logg.Error(runCtx, "failed to build product cache", err)
		os.Exit(1)
	}
	favoritesCache, err := cache.New[[]products.Product](cache.Options{
		Name: "favorites", TTL: cfg.Cache.FavoritesTTL, MaxSize: cfg.Cache.FavoritesMaxSize, Metrics: cacheMetrics, Logger: logg,
	})
	if err != nil {
		logg.Error(runCtx, "failed to build favorites cache", err)
		os.Exit(1)
	}

	upstream, err := buildUpstream(cfg, logg)
	if err != nil {
		logg.Error(runCtx, "failed to configure backend", err)
		os.Exit(1)
	}

	catalog, err := products.NewCatalog(upstream.lister, listings, productCache, logg)
	if err != nil {
		logg.Error(runCtx, "failed to build catalog", err)
		os.Exit(1)
	}

	sessions, err := session.NewManager(session.Params{
		Store:           store.Store,
		Orders:          upstream.orders,
		Favorites:       upstream.favorites,
		FavoritesCache:  favoritesCache,
		RefreshAttempts: cfg.Favorites.RefreshAttempts,
		Metrics:         checkoutMetrics,
		Logger:          logg,
	})
	if err != nil {
		logg.Error(runCtx, "failed to build session manager", err)
		os.Exit(1)
	}

	if cfg.Maintenance.Enabled {
		maintenance, err := buildMaintenance(cfg, logg, metrics.NewMaintenanceMetrics(registry), sessions, upstream.expirer,
			listings, productCache, favoritesCache)
		if err != nil {
			logg.Error(runCtx, "failed to build maintenance loop", err)
			os.Exit(1)
		}
		go func() {
			_ = maintenance.Run(runCtx)
		}()
	}

	var pinger controllers.Pinger
	if store.Pinger != nil {
		pinger = store.Pinger
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"instance":     instance.GetID(),
		"store_driver": cfg.Store.Driver,
		"in_process":   cfg.Backend.InProcess(),
	})
	logg.Info(ctx, "starting storefront server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Store:    pinger,
			Catalog:  catalog,
			Sessions: sessions,
			Gatherer: registry,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "storefront server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutting down storefront server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "storefront server shutdown failed", err)
	}
	if err := sessions.Close(shutdownCtx); err != nil {
		logg.Error(ctx, "failed to flush sessions", err)
	}
}

type upstream struct {
	lister    products.Lister
	orders    session.OrderServiceFactory
	favorites session.FavoritesServiceFactory
	// expirer is only set for the in-process order service.
	expirer cron.PendingOrderExpirer
}

// buildUpstream points the storefront at the REST backend, or at in-process
// services seeded with the demo catalog when no backend URL is configured.
func buildUpstream(cfg *config.Config, logg *logger.Logger) (*upstream, error) {
	if cfg.Backend.InProcess() {
		lister := products.NewMemoryLister(demoCatalog()...)
		orderSvc, err := orders.NewMemoryService(orders.MemoryOptions{
			PaymentBaseURL: cfg.Backend.PaymentBaseURL,
			Logger:         logg,
		})
		if err != nil {
			return nil, err
		}
		favSvc := favorites.NewMemoryService(lister)
		return &upstream{
			lister:    lister,
			orders:    func(string) checkout.OrderService { return orderSvc },
			favorites: favSvc.ForUser,
			expirer:   orderSvc,
		}, nil
	}

	client, err := backend.NewClient(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithAPIToken(cfg.Backend.APIToken),
		backend.WithCircuitBreaker(cfg.Backend.BreakerFailures, cfg.Backend.BreakerCooldown),
		backend.WithLogger(logg),
	)
	if err != nil {
		return nil, err
	}
	return &upstream{
		lister:    client,
		orders:    func(userID string) checkout.OrderService { return client.ForUser(userID) },
		favorites: func(userID string) favorites.Service { return client.ForUser(userID) },
	}, nil
}
