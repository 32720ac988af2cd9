package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/angelmondragon/packfinderz-storefront/internal/products"
)

var _ products.Lister = (*Client)(nil)

func (c *Client) ListProducts(ctx context.Context, params products.ListParams) (*products.Page, error) {
	pg := params.Pagination.Normalize()
	query := url.Values{}
	query.Set("page", strconv.Itoa(pg.Page))
	query.Set("limit", strconv.Itoa(pg.Limit))
	if q := strings.TrimSpace(params.Query); q != "" {
		query.Set("q", q)
	}
	if params.SellerID > 0 {
		query.Set("sellerId", strconv.FormatInt(params.SellerID, 10))
	}

	var page products.Page
	if err := c.do(ctx, request{method: http.MethodGet, path: "products", query: query, action: "list products"}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (*products.Product, error) {
	var product products.Product
	path := "products/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, request{method: http.MethodGet, path: path, action: "get product"}, &product); err != nil {
		return nil, err
	}
	return &product, nil
}
