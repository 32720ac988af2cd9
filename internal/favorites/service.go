// Package favorites keeps a session's favorite products in sync with the
// backend using optimistic toggles and merged authoritative refreshes.
package favorites

import (
	"context"

	"github.com/angelmondragon/packfinderz-storefront/internal/products"
)

// Service is the backend of record for favorites. Toggle flips membership.
type Service interface {
	Toggle(ctx context.Context, productID int64) error
	List(ctx context.Context) ([]products.Product, error)
}

// Persister stores the favorites half of the session snapshot.
type Persister interface {
	LoadFavorites(ctx context.Context) ([]int64, []products.Product, error)
	SaveFavorites(ctx context.Context, ids []int64, favorites []products.Product) error
}

// CacheKey namespaces the favorites list cache by user.
func CacheKey(userID string) string {
	return "favorites:" + userID
}
