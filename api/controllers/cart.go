package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-storefront/api/responses"
	"github.com/angelmondragon/packfinderz-storefront/api/validators"
	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

type cartResponse struct {
	Items           []cart.Item     `json:"items"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	TotalItems      int             `json:"totalItems"`
	UniqueItemCount int             `json:"uniqueItemCount"`
}

func newCartResponse(state *cart.State) cartResponse {
	snap := state.Snapshot()
	items := snap.Items
	if items == nil {
		items = []cart.Item{}
	}
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return cartResponse{
		Items:           items,
		TotalPrice:      snap.TotalPrice,
		TotalItems:      total,
		UniqueItemCount: len(items),
	}
}

type addCartItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  *int  `json:"quantity,omitempty" validate:"omitempty,min=1"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

func CartFetch(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := currentSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(sess.Cart))
	}
}

// CartAddItem adds a catalog product to the cart. Quantity defaults to one.
func CartAddItem(sessions Sessions, catalog *products.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := currentSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := requireCatalog(catalog); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quantity := 1
		if payload.Quantity != nil {
			quantity = *payload.Quantity
		}

		product, err := catalog.Get(r.Context(), payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := sess.Cart.Add(r.Context(), *product, quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(sess.Cart))
	}
}

// CartUpdateItem sets the quantity of a line; zero or less removes it.
func CartUpdateItem(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := currentSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := int64Param(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := sess.Cart.UpdateQuantity(r.Context(), productID, *payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(sess.Cart))
	}
}

func CartRemoveItem(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := currentSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := int64Param(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := sess.Cart.Remove(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(sess.Cart))
	}
}

func CartClear(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := currentSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := sess.Cart.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(sess.Cart))
	}
}
