package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-storefront/api/middleware"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
)

// Sessions resolves the storefront session of a user.
type Sessions interface {
	Get(ctx context.Context, userID string) (*session.Session, error)
}

var _ Sessions = (*session.Manager)(nil)

func currentSession(r *http.Request, sessions Sessions) (*session.Session, error) {
	if sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session manager unavailable")
	}
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return sessions.Get(r.Context(), userID)
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

func requireCatalog(catalog *products.Catalog) error {
	if catalog == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable")
	}
	return nil
}
