// Package orders is an in-process order service: it splits a checkout into
// one order per seller, mints payment links and tracks order status.
package orders

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/checkout/helpers"
	pkgcheckout "github.com/angelmondragon/packfinderz-storefront/pkg/checkout"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

// Order is a seller order held by the service.
type Order struct {
	ID             int64                  `json:"id"`
	SellerID       int64                  `json:"sellerId"`
	SellerName     string                 `json:"sellerName,omitempty"`
	Items          []pkgcheckout.LineItem `json:"items"`
	TotalPrice     decimal.Decimal        `json:"totalPrice"`
	Status         enums.OrderStatus      `json:"status"`
	PaymentURL     string                 `json:"paymentUrl,omitempty"`
	Note           string                 `json:"note,omitempty"`
	IdempotencyKey string                 `json:"-"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

func (o *Order) summary() checkout.OrderSummary {
	return checkout.OrderSummary{
		ID:         o.ID,
		SellerID:   o.SellerID,
		SellerName: o.SellerName,
		TotalPrice: o.TotalPrice,
		Status:     o.Status,
		PaymentURL: o.PaymentURL,
	}
}

func (o *Order) clone() *Order {
	out := *o
	out.Items = append([]pkgcheckout.LineItem{}, o.Items...)
	return &out
}

// MemoryOptions configures a MemoryService.
type MemoryOptions struct {
	// PaymentBaseURL prefixes minted payment links.
	PaymentBaseURL string
	Now            func() time.Time
	Logger         *logger.Logger
}

// MemoryService implements checkout.OrderService in memory. Checkouts that
// carry an idempotency key already seen return the original response.
type MemoryService struct {
	paymentBase *url.URL
	now         func() time.Time
	logg        *logger.Logger

	mu     sync.Mutex
	nextID int64
	orders map[int64]*Order
	byKey  map[string][]int64
}

func NewMemoryService(opts MemoryOptions) (*MemoryService, error) {
	base, err := url.Parse(opts.PaymentBaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid payment base url %q", opts.PaymentBaseURL)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MemoryService{
		paymentBase: base,
		now:         opts.Now,
		logg:        opts.Logger,
		orders:      make(map[int64]*Order),
		byKey:       make(map[string][]int64),
	}, nil
}

var _ checkout.OrderService = (*MemoryService)(nil)

func (s *MemoryService) Checkout(ctx context.Context, items []checkout.LineItem, note string) (*checkout.OrderServiceResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pkgcheckout.ValidateLineItems(items); err != nil {
		return nil, err
	}
	note, err := pkgcheckout.ValidateNote(note)
	if err != nil {
		return nil, err
	}
	key := checkout.IdempotencyKeyFrom(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if ids, ok := s.byKey[key]; ok {
			s.logg.Info(s.logg.WithField(ctx, "idempotency_key", key), "orders.checkout_replayed")
			return s.responseFor(ids), nil
		}
	}

	grouped := helpers.GroupItemsBySeller(items)
	now := s.now()
	ids := make([]int64, 0, len(grouped))
	for _, sellerID := range helpers.SellerOrder(items) {
		group := grouped[sellerID]
		totals := helpers.ComputeSellerTotals(group)
		s.nextID++
		order := &Order{
			ID:             s.nextID,
			SellerID:       sellerID,
			SellerName:     totals.SellerName,
			Items:          append([]pkgcheckout.LineItem{}, group...),
			TotalPrice:     totals.Total,
			Status:         enums.OrderStatusPending,
			Note:           note,
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if totals.Total.IsPositive() {
			order.PaymentURL = s.paymentURL(order)
		} else {
			order.Status = enums.OrderStatusPaid
		}
		s.orders[order.ID] = order
		ids = append(ids, order.ID)
	}
	if key != "" {
		s.byKey[key] = ids
	}
	s.logg.Info(s.logg.WithField(ctx, "order_count", len(ids)), "orders.created")
	return s.responseFor(ids), nil
}

// responseFor expects mu to be held.
func (s *MemoryService) responseFor(ids []int64) *checkout.OrderServiceResponse {
	resp := &checkout.OrderServiceResponse{
		Orders:       make([]checkout.OrderSummary, 0, len(ids)),
		TotalAmount:  decimal.Zero,
		SellerCount:  len(ids),
		PaymentInfos: make([]checkout.PaymentInfo, 0, len(ids)),
	}
	for _, id := range ids {
		order := s.orders[id]
		resp.Orders = append(resp.Orders, order.summary())
		resp.TotalAmount = resp.TotalAmount.Add(order.TotalPrice)
		if order.PaymentURL == "" {
			continue
		}
		resp.PaymentRequired = true
		resp.PaymentInfos = append(resp.PaymentInfos, checkout.PaymentInfo{
			OrderID:    order.ID,
			Amount:     order.TotalPrice,
			PaymentURL: order.PaymentURL,
		})
		if resp.PrimaryPaymentURL == "" {
			resp.PrimaryPaymentURL = order.PaymentURL
		}
	}
	return resp
}

func (s *MemoryService) paymentURL(order *Order) string {
	u := *s.paymentBase
	q := u.Query()
	q.Set("order", strconv.FormatInt(order.ID, 10))
	q.Set("amount", order.TotalPrice.StringFixed(2))
	u.RawQuery = q.Encode()
	return u.String()
}

// CancelOrder moves a PENDING order to CANCELLED.
func (s *MemoryService) CancelOrder(ctx context.Context, orderID int64) error {
	return s.transition(ctx, orderID, enums.OrderStatusCancelled)
}

// MarkPaid records the external payment confirmation for a PENDING order.
func (s *MemoryService) MarkPaid(ctx context.Context, orderID int64) error {
	return s.transition(ctx, orderID, enums.OrderStatusPaid)
}

func (s *MemoryService) transition(ctx context.Context, orderID int64, to enums.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s", order.Status)).
			WithDetails(map[string]any{"order_id": orderID, "status": order.Status})
	}
	order.Status = to
	order.UpdatedAt = s.now()
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, orderID), map[string]any{"status": to.String()}), "orders.status_changed")
	return nil
}

// Get returns a copy of the order.
func (s *MemoryService) Get(_ context.Context, orderID int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order.clone(), nil
}

// ExpirePending cancels every PENDING order created before cutoff and returns
// the affected ids in ascending order.
func (s *MemoryService) ExpirePending(ctx context.Context, cutoff time.Time) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []int64
	now := s.now()
	for id, order := range s.orders {
		if order.Status != enums.OrderStatusPending || !order.CreatedAt.Before(cutoff) {
			continue
		}
		order.Status = enums.OrderStatusCancelled
		order.UpdatedAt = now
		expired = append(expired, id)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	if len(expired) > 0 {
		s.logg.Info(s.logg.WithField(ctx, "order_ids", expired), "orders.expired")
	}
	return expired, nil
}
