package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/packfinderz-storefront/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

// UserHeader carries the authenticated user id set by the upstream gateway.
const UserHeader = "X-User-ID"

// User rejects requests without a user id and attaches it to the context.
func User(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserHeader))
			if userID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id header missing"))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			ctx = logg.WithUserID(ctx, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
