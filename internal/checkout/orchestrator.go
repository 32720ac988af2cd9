package checkout

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/internal/checkout/helpers"
	pkgcheckout "github.com/angelmondragon/packfinderz-storefront/pkg/checkout"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

// maxTrackedOrders bounds the statuses an orchestrator remembers; the oldest
// order is forgotten first.
const maxTrackedOrders = 64

// Cart is the part of cart.State checkout depends on.
type Cart interface {
	Snapshot() cart.Snapshot
	RemoveOrdered(ctx context.Context, ordered []cart.Item) error
}

// Params groups dependencies for an Orchestrator.
type Params struct {
	Cart    Cart
	Orders  OrderService
	Metrics *metrics.CheckoutMetrics
	Logger  *logger.Logger
	// NewKey mints idempotency keys; defaults to random UUIDs.
	NewKey func() string
	Now    func() time.Time
}

// Orchestrator runs at most one checkout at a time for a session.
type Orchestrator struct {
	cart    Cart
	orders  OrderService
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	newKey  func() string
	now     func() time.Time

	processing atomic.Bool

	mu       sync.Mutex
	statuses map[int64]enums.OrderStatus
	tracked  []int64
}

func NewOrchestrator(params Params) (*Orchestrator, error) {
	if params.Cart == nil {
		return nil, fmt.Errorf("cart required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if params.NewKey == nil {
		params.NewKey = func() string { return uuid.NewString() }
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Orchestrator{
		cart:     params.Cart,
		orders:   params.Orders,
		metrics:  params.Metrics,
		logg:     params.Logger,
		newKey:   params.NewKey,
		now:      params.Now,
		statuses: make(map[int64]enums.OrderStatus),
	}, nil
}

// IsProcessing reports whether a checkout call is in flight.
func (o *Orchestrator) IsProcessing() bool {
	return o.processing.Load()
}

// Checkout sends the current cart to the order service in a single call.
// When no payment is required the cart is cleared before returning; otherwise
// it is kept until CompleteRedirect. A response that does not account for
// every seller or amount yields a PARTIAL_FAILURE error carrying the result,
// and the cart is kept.
func (o *Orchestrator) Checkout(ctx context.Context, note string) (*Result, error) {
	if !o.processing.CompareAndSwap(false, true) {
		o.metrics.Observe(metrics.OutcomeInProgress, 0)
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyInProgress, "a checkout is already in progress")
	}
	defer o.processing.Store(false)

	started := o.now()
	result, outcome, err := o.checkout(ctx, note)
	o.metrics.Observe(outcome, o.now().Sub(started))
	return result, err
}

func (o *Orchestrator) checkout(ctx context.Context, note string) (*Result, string, error) {
	snapshot := o.cart.Snapshot()
	if snapshot.IsEmpty() {
		return nil, metrics.OutcomeEmptyCart, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	note, err := pkgcheckout.ValidateNote(note)
	if err != nil {
		return nil, metrics.OutcomeValidation, err
	}
	items := helpers.FlattenCart(snapshot.Items)
	if err := helpers.ValidateCheckoutItems(items); err != nil {
		return nil, metrics.OutcomeValidation, err
	}
	expected := helpers.ComputeTotalsBySeller(items)

	key := o.newKey()
	ctx = WithIdempotencyKey(ctx, key)
	ctx = o.logg.WithFields(ctx, map[string]any{
		"idempotency_key": key,
		"seller_count":    len(expected),
		"item_count":      len(items),
	})
	o.logg.Info(ctx, "checkout.started")

	resp, err := o.orders.Checkout(ctx, items, note)
	if err != nil {
		o.logg.Error(ctx, "checkout.order_service_failed", err)
		if typed := pkgerrors.As(err); typed != nil {
			return nil, metrics.OutcomeNetworkError, err
		}
		return nil, metrics.OutcomeNetworkError, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout request failed")
	}
	if resp == nil {
		return nil, metrics.OutcomeNetworkError, pkgerrors.New(pkgerrors.CodeDependency, "order service returned no response")
	}

	result := buildResult(resp, key)
	result.ordered = snapshot.Items
	o.track(result.Orders)

	if reasons := detectAnomalies(expected, resp, result); len(reasons) > 0 {
		o.logg.Warn(o.logg.WithField(ctx, "reasons", reasons), "checkout.partial_failure")
		return nil, metrics.OutcomePartialFailure, pkgerrors.New(pkgerrors.CodePartialFailure, "order service did not create every expected order").
			WithDetails(PartialFailureDetails{Reasons: reasons, Result: result})
	}

	if !result.PaymentRequired {
		if err := o.commit(ctx, result); err != nil {
			return result, metrics.OutcomeSuccess, err
		}
	}
	o.logg.Info(o.logg.WithField(ctx, "order_count", len(result.Orders)), "checkout.completed")
	return result, metrics.OutcomeSuccess, nil
}

// CompleteRedirect takes the ordered lines out of the cart and returns the
// primary payment URL. It is meant to be called right before redirecting to
// the payment page; repeated calls with the same result return the URL
// without touching the cart again. Lines added after the checkout stay.
func (o *Orchestrator) CompleteRedirect(ctx context.Context, result *Result) (string, error) {
	if result == nil || len(result.Orders) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "checkout result has no orders")
	}
	if !result.PaymentRequired {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "checkout does not require payment")
	}
	if result.PrimaryPaymentURL == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "checkout result has no payment url")
	}
	if err := o.commit(ctx, result); err != nil {
		return "", err
	}
	return result.PrimaryPaymentURL, nil
}

func (o *Orchestrator) commit(ctx context.Context, result *Result) error {
	if !result.committed.CompareAndSwap(false, true) {
		return nil
	}
	if err := o.cart.RemoveOrdered(ctx, result.ordered); err != nil {
		result.committed.Store(false)
		o.logg.Error(ctx, "checkout.cart_clear_failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "orders were created but the cart could not be cleared")
	}
	result.Completed = true
	return nil
}

// CancelOrder cancels one pending order. Orders already cancelled or paid
// yield STATE_CONFLICT; unknown orders NOT_FOUND.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID int64) error {
	if orderID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id must be positive")
	}
	ctx = o.logg.WithOrderID(ctx, orderID)

	if status, ok := o.OrderStatus(orderID); ok && status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is already %s", status.String()))
	}

	if err := o.orders.CancelOrder(ctx, orderID); err != nil {
		o.logg.Warn(ctx, "checkout.cancel_failed")
		return mapCancelError(err)
	}

	o.mu.Lock()
	o.remember(orderID, enums.OrderStatusCancelled)
	o.mu.Unlock()
	o.logg.Info(ctx, "checkout.order_cancelled")
	return nil
}

// OrderStatus returns the last status this orchestrator saw for orderID.
func (o *Orchestrator) OrderStatus(orderID int64) (enums.OrderStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status, ok := o.statuses[orderID]
	return status, ok
}

func (o *Orchestrator) track(orders []OrderSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, order := range orders {
		status := order.Status
		if !status.IsValid() {
			status = enums.OrderStatusPending
		}
		o.remember(order.ID, status)
	}
}

// remember expects mu to be held.
func (o *Orchestrator) remember(orderID int64, status enums.OrderStatus) {
	if _, ok := o.statuses[orderID]; !ok {
		o.tracked = append(o.tracked, orderID)
	}
	o.statuses[orderID] = status
	for len(o.tracked) > maxTrackedOrders {
		delete(o.statuses, o.tracked[0])
		o.tracked = o.tracked[1:]
	}
}

func mapCancelError(err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel request failed")
	}
	switch typed.Code() {
	case pkgerrors.CodeConflict, pkgerrors.CodeStateConflict:
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "order can no longer be cancelled")
	default:
		return err
	}
}

func buildResult(resp *OrderServiceResponse, key string) *Result {
	result := &Result{
		Orders:          append([]OrderSummary{}, resp.Orders...),
		TotalAmount:     resp.TotalAmount,
		PaymentRequired: resp.PaymentRequired,
		SellerCount:     resp.SellerCount,
		PaymentInfos:    []PaymentInfo{},
		IdempotencyKey:  key,
	}
	if result.SellerCount == 0 {
		result.SellerCount = len(result.Orders)
	}
	if len(result.Orders) == 0 {
		return result
	}

	urls := make(map[int64]PaymentInfo, len(resp.PaymentInfos))
	for _, info := range resp.PaymentInfos {
		urls[info.OrderID] = info
	}
	for i := range result.Orders {
		order := &result.Orders[i]
		if order.PaymentURL == "" {
			order.PaymentURL = urls[order.ID].PaymentURL
		}
	}

	primaryID := result.Orders[0].ID
	result.PrimaryPaymentURL = result.Orders[0].PaymentURL
	if result.PrimaryPaymentURL == "" && resp.PrimaryPaymentURL != "" {
		result.PrimaryPaymentURL = resp.PrimaryPaymentURL
		matched := false
		for _, order := range result.Orders {
			if order.PaymentURL == resp.PrimaryPaymentURL {
				primaryID = order.ID
				matched = true
				break
			}
		}
		if !matched && result.Orders[0].TotalPrice.IsPositive() {
			result.Orders[0].PaymentURL = resp.PrimaryPaymentURL
		}
	}
	for _, order := range result.Orders {
		if order.ID == primaryID || (order.PaymentURL == "" && !order.TotalPrice.IsPositive()) {
			continue
		}
		amount := order.TotalPrice
		if info, ok := urls[order.ID]; ok && !info.Amount.IsZero() {
			amount = info.Amount
		}
		result.PaymentInfos = append(result.PaymentInfos, PaymentInfo{
			OrderID:    order.ID,
			Amount:     amount,
			PaymentURL: order.PaymentURL,
		})
	}
	return result
}

func detectAnomalies(expected map[int64]helpers.SellerTotals, resp *OrderServiceResponse, result *Result) []string {
	var reasons []string
	if len(result.Orders) == 0 {
		return []string{"no orders returned"}
	}
	if len(result.Orders) < len(expected) {
		reasons = append(reasons, fmt.Sprintf("expected %d orders, got %d", len(expected), len(result.Orders)))
	}
	if resp.SellerCount > 0 && resp.SellerCount != len(result.Orders) {
		reasons = append(reasons, fmt.Sprintf("seller count %d does not match %d orders", resp.SellerCount, len(result.Orders)))
	}

	covered := make(map[int64]struct{}, len(result.Orders))
	sum := decimal.Zero
	for _, order := range result.Orders {
		covered[order.SellerID] = struct{}{}
		sum = sum.Add(order.TotalPrice)
		if result.PaymentRequired && order.TotalPrice.IsPositive() && order.PaymentURL == "" {
			reasons = append(reasons, fmt.Sprintf("order %d has no payment url", order.ID))
		}
	}
	for _, sellerID := range helpers.SortedSellerIDs(expected) {
		if _, ok := covered[sellerID]; !ok {
			reasons = append(reasons, fmt.Sprintf("no order for seller %d", sellerID))
		}
	}
	if !sum.Equal(result.TotalAmount) {
		reasons = append(reasons, fmt.Sprintf("order totals %s do not match total amount %s", sum.String(), result.TotalAmount.String()))
	}
	return reasons
}
