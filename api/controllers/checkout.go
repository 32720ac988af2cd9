package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-storefront/api/responses"
	"github.com/angelmondragon/packfinderz-storefront/api/validators"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

type checkoutRequest struct {
	Note string `json:"note" validate:"max=500"`
}

type redirectResponse struct {
	PaymentURL string `json:"paymentUrl"`
}

// Checkout submits the cart as orders. Results that still need payment are
// remembered under their idempotency key for CheckoutRedirect.
func Checkout(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := currentSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := sess.Checkout(r.Context(), payload.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutRedirect clears the cart for a paid checkout and returns the
// primary payment URL.
func CheckoutRedirect(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := currentSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key := strings.TrimSpace(chi.URLParam(r, "checkoutKey"))
		url, err := sess.CompleteRedirect(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redirectResponse{PaymentURL: url})
	}
}
