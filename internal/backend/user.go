package backend

import (
	"context"
	"net/http"
	"strconv"

	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/favorites"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
)

// UserClient issues order and favorites calls for one user.
type UserClient struct {
	client *Client
	userID string
}

var (
	_ checkout.OrderService = (*UserClient)(nil)
	_ favorites.Service     = (*UserClient)(nil)
)

type checkoutRequest struct {
	Items []checkout.LineItem `json:"items"`
	Note  string              `json:"note,omitempty"`
}

// Checkout creates the orders for items in one request. The idempotency key
// attached to ctx is forwarded so a retried request cannot duplicate orders.
func (u *UserClient) Checkout(ctx context.Context, items []checkout.LineItem, note string) (*checkout.OrderServiceResponse, error) {
	var resp checkout.OrderServiceResponse
	err := u.client.do(ctx, request{
		method: http.MethodPost,
		path:   "checkout",
		userID: u.userID,
		body:   checkoutRequest{Items: items, Note: note},
		action: "checkout",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (u *UserClient) CancelOrder(ctx context.Context, orderID int64) error {
	return u.client.do(ctx, request{
		method: http.MethodPost,
		path:   "orders/" + strconv.FormatInt(orderID, 10) + "/cancel",
		userID: u.userID,
		action: "cancel order",
	}, nil)
}

func (u *UserClient) Toggle(ctx context.Context, productID int64) error {
	return u.client.do(ctx, request{
		method: http.MethodPost,
		path:   "favorites/" + strconv.FormatInt(productID, 10) + "/toggle",
		userID: u.userID,
		action: "toggle favorite",
	}, nil)
}

func (u *UserClient) List(ctx context.Context) ([]products.Product, error) {
	var resp struct {
		Favorites []products.Product `json:"favorites" validate:"dive"`
	}
	err := u.client.do(ctx, request{
		method: http.MethodGet,
		path:   "favorites",
		userID: u.userID,
		action: "list favorites",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Favorites == nil {
		resp.Favorites = []products.Product{}
	}
	return resp.Favorites, nil
}
