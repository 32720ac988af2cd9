package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/packfinderz-storefront/internal/cache"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/pagination"
)

// CacheKeyPrefix namespaces every catalog entry in the shared product cache.
const CacheKeyPrefix = "products:"

// ListParams filters a product listing.
type ListParams struct {
	Pagination pagination.Params
	Query      string
	SellerID   int64
}

// CacheKey is independent of the requesting user.
func (p ListParams) CacheKey() string {
	key := CacheKeyPrefix + "list:" + p.Pagination.String()
	if q := strings.ToLower(strings.TrimSpace(p.Query)); q != "" {
		key += "&q=" + q
	}
	if p.SellerID > 0 {
		key += fmt.Sprintf("&seller=%d", p.SellerID)
	}
	return key
}

// Page is one page of a product listing.
type Page struct {
	Items []Product `json:"items" validate:"dive"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
	Total int       `json:"total"`
}

func (p *Page) clone() *Page {
	if p == nil {
		return nil
	}
	out := *p
	out.Items = CloneAll(p.Items)
	return &out
}

// Lister is the upstream product source.
type Lister interface {
	ListProducts(ctx context.Context, params ListParams) (*Page, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
}

// Catalog reads products through the shared product cache.
type Catalog struct {
	lister   Lister
	listings *cache.Manager[*Page]
	items    *cache.Manager[*Product]
	logg     *logger.Logger
}

// NewCatalog builds a catalog over lister. Both caches are required.
func NewCatalog(lister Lister, listings *cache.Manager[*Page], items *cache.Manager[*Product], logg *logger.Logger) (*Catalog, error) {
	if lister == nil {
		return nil, fmt.Errorf("product lister required")
	}
	if listings == nil || items == nil {
		return nil, fmt.Errorf("product caches required")
	}
	return &Catalog{lister: lister, listings: listings, items: items, logg: logg}, nil
}

// List returns a page of products, served from cache while fresh.
func (c *Catalog) List(ctx context.Context, params ListParams) (*Page, error) {
	params.Pagination = params.Pagination.Normalize()
	page, err := c.listings.FetchWithCache(ctx, params.CacheKey(), func(ctx context.Context) (*Page, error) {
		page, err := c.lister.ListProducts(ctx, params)
		if err != nil {
			return nil, err
		}
		if page == nil {
			page = &Page{Page: params.Pagination.Page, Limit: params.Pagination.Limit}
		}
		return page, nil
	})
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "cache_key", params.CacheKey()), "products.list_failed")
		return nil, err
	}
	return page.clone(), nil
}

// Get returns one product, served from cache while fresh.
func (c *Catalog) Get(ctx context.Context, id int64) (*Product, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	key := fmt.Sprintf("%sid:%d", CacheKeyPrefix, id)
	product, err := c.items.FetchWithCache(ctx, key, func(ctx context.Context) (*Product, error) {
		product, err := c.lister.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return product, nil
	})
	if err != nil {
		return nil, err
	}
	clone := product.Clone()
	return &clone, nil
}

// Invalidate drops every cached listing and product.
func (c *Catalog) Invalidate() {
	c.listings.InvalidatePrefix(CacheKeyPrefix)
	c.items.InvalidatePrefix(CacheKeyPrefix)
}
