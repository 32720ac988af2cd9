package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/packfinderz-storefront/api/responses"
	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

const envHeader = "X-Storefront-Env"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the snapshot store when it is backed by a connection.
func HealthReady(cfg *config.Config, logg *logger.Logger, store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot store unreachable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready", "store": cfg.Store.Driver})
	}
}
