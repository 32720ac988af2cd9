package favorites

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
)

func TestMemoryServiceTogglesPerUser(t *testing.T) {
	lister := products.NewMemoryLister(
		products.Product{ID: 1, Name: "A", Price: decimal.NewFromInt(1), SellerID: 1},
		products.Product{ID: 2, Name: "B", Price: decimal.NewFromInt(2), SellerID: 1},
	)
	svc := NewMemoryService(lister)
	ctx := context.Background()
	alice, bob := svc.ForUser("alice"), svc.ForUser("bob")

	require.NoError(t, alice.Toggle(ctx, 1))
	require.NoError(t, alice.Toggle(ctx, 2))
	require.NoError(t, bob.Toggle(ctx, 2))
	require.NoError(t, alice.Toggle(ctx, 1))

	got, err := alice.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)

	got, err = bob.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	err = alice.Toggle(ctx, 99)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
