// Package products holds the product records shown in listings, carts and
// favorites, plus the cached catalog reader.
package products

import "github.com/shopspring/decimal"

// Product is the denormalized product record the storefront displays.
type Product struct {
	ID              int64            `json:"id" validate:"required,gt=0"`
	Name            string           `json:"name"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
	Stock           int              `json:"stock" validate:"gte=0"`
	SellerID        int64            `json:"sellerId" validate:"required,gt=0"`
	SellerName      string           `json:"sellerName"`
	ImageURL        string           `json:"imageUrl,omitempty"`
}

// EffectivePrice is the discounted price when present, otherwise the list price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountedPrice != nil {
		return *p.DiscountedPrice
	}
	return p.Price
}

// Clone returns a copy that shares no pointers with p.
func (p Product) Clone() Product {
	out := p
	if p.DiscountedPrice != nil {
		d := *p.DiscountedPrice
		out.DiscountedPrice = &d
	}
	return out
}

// CloneAll copies a slice of products.
func CloneAll(in []Product) []Product {
	if in == nil {
		return nil
	}
	out := make([]Product, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
