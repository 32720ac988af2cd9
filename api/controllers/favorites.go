package controllers

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-storefront/api/responses"
	"github.com/angelmondragon/packfinderz-storefront/internal/favorites"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

type favoritesResponse struct {
	IDs      []int64            `json:"ids"`
	Products []products.Product `json:"products"`
	Count    int                `json:"count"`
	Pending  int                `json:"pending"`
}

func newFavoritesResponse(state *favorites.State) favoritesResponse {
	ids := state.IDs()
	if ids == nil {
		ids = []int64{}
	}
	items := state.Products()
	if items == nil {
		items = []products.Product{}
	}
	return favoritesResponse{IDs: ids, Products: items, Count: len(ids), Pending: state.Pending()}
}

type toggleFavoriteResponse struct {
	ProductID int64 `json:"productId"`
	Favorite  bool  `json:"favorite"`
}

func FavoritesList(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := currentSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newFavoritesResponse(sess.Favorites))
	}
}

// FavoritesToggle flips a product in or out of the favorite set. A rejected
// backend call surfaces as STATE_REVERTED with the restored membership.
func FavoritesToggle(sessions Sessions, catalog *products.Catalog, logg *logger.Logger) http.HandlerFunc {
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
		productID, err := int64Param(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := catalog.Get(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		favorite, err := sess.Favorites.Toggle(r.Context(), *product)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toggleFavoriteResponse{ProductID: productID, Favorite: favorite})
	}
}

// FavoritesRefresh reloads the favorite set from the backend.
func FavoritesRefresh(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := currentSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := sess.Favorites.FetchFromBackend(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newFavoritesResponse(sess.Favorites))
	}
}
