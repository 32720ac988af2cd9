// Package checkout turns a session's cart into one or more payable orders and
// drives order cancellation.
package checkout

import (
	"context"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	pkgcheckout "github.com/angelmondragon/packfinderz-storefront/pkg/checkout"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
)

// LineItem is one product sent to the order service.
type LineItem = pkgcheckout.LineItem

// OrderSummary is one order created by a checkout.
type OrderSummary struct {
	ID         int64             `json:"id" validate:"required,gt=0"`
	SellerID   int64             `json:"sellerId" validate:"required,gt=0"`
	SellerName string            `json:"sellerName,omitempty"`
	TotalPrice decimal.Decimal   `json:"totalPrice"`
	Status     enums.OrderStatus `json:"status,omitempty"`
	PaymentURL string            `json:"paymentUrl,omitempty"`
}

// PaymentInfo describes how to pay one order.
type PaymentInfo struct {
	OrderID    int64           `json:"orderId" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	PaymentURL string          `json:"paymentUrl"`
}

// OrderServiceResponse is what the order service returns for a checkout.
type OrderServiceResponse struct {
	Orders            []OrderSummary  `json:"orders" validate:"dive"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	PaymentRequired   bool            `json:"paymentRequired"`
	SellerCount       int             `json:"sellerCount" validate:"gte=0"`
	PrimaryPaymentURL string          `json:"primaryPaymentUrl,omitempty"`
	PaymentInfos      []PaymentInfo   `json:"paymentInfos" validate:"dive"`
}

// OrderService creates and cancels orders. Checkout is expected to create one
// order per distinct seller in items.
type OrderService interface {
	Checkout(ctx context.Context, items []LineItem, note string) (*OrderServiceResponse, error)
	CancelOrder(ctx context.Context, orderID int64) error
}

// Result is the outcome of one checkout. It is never persisted.
type Result struct {
	Orders            []OrderSummary  `json:"orders"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	PaymentRequired   bool            `json:"paymentRequired"`
	SellerCount       int             `json:"sellerCount"`
	PrimaryPaymentURL string          `json:"primaryPaymentUrl,omitempty"`
	// PaymentInfos covers every order except the primary one.
	PaymentInfos   []PaymentInfo `json:"paymentInfos"`
	IdempotencyKey string        `json:"idempotencyKey"`
	// Completed is set once the cart has been cleared for this result.
	Completed bool `json:"completed"`

	committed atomic.Bool
	// ordered is the cart snapshot the orders were created from.
	ordered []cart.Item
}

// PartialFailureDetails is attached to PARTIAL_FAILURE errors.
type PartialFailureDetails struct {
	Reasons []string `json:"reasons"`
	Result  *Result  `json:"result"`
}

type idempotencyKeyCtx struct{}

// WithIdempotencyKey attaches the key the order service should dedupe on.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKeyFrom returns the key attached by WithIdempotencyKey.
func IdempotencyKeyFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}
