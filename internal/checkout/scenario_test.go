package checkout_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/orders"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	"github.com/angelmondragon/packfinderz-storefront/internal/snapshot"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/kvstore"
)

func newScenario(t *testing.T) (*cart.State, *orders.MemoryService, *checkout.Orchestrator) {
	t.Helper()
	store, err := snapshot.New(kvstore.NewMemoryStore(), snapshot.NamespaceFor("buyer"), nil)
	require.NoError(t, err)
	c := cart.NewState(store, nil)
	svc, err := orders.NewMemoryService(orders.MemoryOptions{PaymentBaseURL: "https://pay.example.com/checkout"})
	require.NoError(t, err)
	o, err := checkout.NewOrchestrator(checkout.Params{Cart: c, Orders: svc})
	require.NoError(t, err)
	return c, svc, o
}

func TestScenarioSingleSellerRedirect(t *testing.T) {
	c, _, o := newScenario(t)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, products.Product{ID: 1, Price: decimal.NewFromInt(25000), Stock: 5, SellerID: 7}, 2))

	result, err := o.Checkout(ctx, "")
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	assert.True(t, result.Orders[0].TotalPrice.Equal(decimal.NewFromInt(50000)))
	assert.True(t, result.PaymentRequired)
	assert.NotEmpty(t, result.PrimaryPaymentURL)
	assert.Equal(t, 1, c.UniqueItemCount())

	url, err := o.CompleteRedirect(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, result.PrimaryPaymentURL, url)
	assert.Equal(t, 0, c.UniqueItemCount())
}

func TestScenarioTwoSellers(t *testing.T) {
	c, _, o := newScenario(t)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, products.Product{ID: 1, Price: decimal.NewFromInt(1200), Stock: 5, SellerID: 7}, 1))
	require.NoError(t, c.Add(ctx, products.Product{ID: 2, Price: decimal.NewFromInt(800), Stock: 5, SellerID: 8}, 3))

	result, err := o.Checkout(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.SellerCount)
	require.Len(t, result.Orders, 2)

	sum := decimal.Zero
	for _, order := range result.Orders {
		sum = sum.Add(order.TotalPrice)
	}
	assert.True(t, sum.Equal(result.TotalAmount))
	require.Len(t, result.PaymentInfos, 1)
	assert.Equal(t, result.Orders[1].ID, result.PaymentInfos[0].OrderID)
}

func TestScenarioStockExceeded(t *testing.T) {
	c, _, _ := newScenario(t)
	err := c.Add(context.Background(), products.Product{ID: 1, Price: decimal.NewFromInt(10), Stock: 3, SellerID: 7}, 4)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStockExceeded, typed.Code())
	assert.Equal(t, cart.StockExceededDetails{Available: 3, Requested: 4}, typed.Details())
	assert.Equal(t, 0, c.UniqueItemCount())
}

func TestScenarioCancelTwice(t *testing.T) {
	c, svc, o := newScenario(t)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, products.Product{ID: 1, Price: decimal.NewFromInt(10), Stock: 3, SellerID: 7}, 1))

	result, err := o.Checkout(ctx, "")
	require.NoError(t, err)
	orderID := result.Orders[0].ID

	require.NoError(t, o.CancelOrder(ctx, orderID))
	err = o.CancelOrder(ctx, orderID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	order, err := svc.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", order.Status.String())
}

func TestScenarioCancelPaidOrderFails(t *testing.T) {
	c, svc, o := newScenario(t)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, products.Product{ID: 1, Price: decimal.NewFromInt(10), Stock: 3, SellerID: 7}, 1))

	result, err := o.Checkout(ctx, "")
	require.NoError(t, err)
	require.NoError(t, svc.MarkPaid(ctx, result.Orders[0].ID))

	err = o.CancelOrder(ctx, result.Orders[0].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.True(t, pkgerrors.IsCode(o.CancelOrder(ctx, 404), pkgerrors.CodeNotFound))
}
