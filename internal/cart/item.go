package cart

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-storefront/internal/products"
)

// Item is one cart line. Quantity stays within (0, StockAtAddTime].
type Item struct {
	ProductID       int64            `json:"productId"`
	Name            string           `json:"name"`
	UnitPrice       decimal.Decimal  `json:"unitPrice"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
	Quantity        int              `json:"quantity"`
	StockAtAddTime  int              `json:"stockAtAddTime"`
	SellerID        int64            `json:"sellerId"`
	SellerName      string           `json:"sellerName"`
	ImageURL        string           `json:"imageUrl,omitempty"`
}

// EffectivePrice is the discounted price when present, otherwise the unit price.
func (i Item) EffectivePrice() decimal.Decimal {
	if i.DiscountedPrice != nil {
		return *i.DiscountedPrice
	}
	return i.UnitPrice
}

// LineTotal is the effective price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.EffectivePrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i Item) valid() bool {
	return i.ProductID > 0 && i.Quantity > 0 && i.Quantity <= i.StockAtAddTime
}

func (i Item) clone() Item {
	out := i
	if i.DiscountedPrice != nil {
		d := *i.DiscountedPrice
		out.DiscountedPrice = &d
	}
	return out
}

func (i *Item) refreshFrom(p products.Product) {
	i.Name = p.Name
	i.UnitPrice = p.Price
	i.DiscountedPrice = nil
	if p.DiscountedPrice != nil {
		d := *p.DiscountedPrice
		i.DiscountedPrice = &d
	}
	i.StockAtAddTime = p.Stock
	i.SellerID = p.SellerID
	i.SellerName = p.SellerName
	i.ImageURL = p.ImageURL
}

// StockExceededDetails is attached to STOCK_EXCEEDED errors.
type StockExceededDetails struct {
	Available int `json:"available"`
	Requested int `json:"requested"`
}

func cloneItems(in []Item) []Item {
	out := make([]Item, len(in))
	for idx, item := range in {
		out[idx] = item.clone()
	}
	return out
}

// TotalOf sums the line totals of items.
func TotalOf(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
