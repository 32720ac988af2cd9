package helpers

import (
	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/pkg/checkout"
)

// FlattenCart converts cart lines into order line items priced at their
// effective price.
func FlattenCart(items []cart.Item) []checkout.LineItem {
	out := make([]checkout.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, checkout.LineItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Price:      item.EffectivePrice(),
			SellerID:   item.SellerID,
			SellerName: item.SellerName,
		})
	}
	return out
}

// ValidateCheckoutItems ensures every line can be sent to the order service.
func ValidateCheckoutItems(items []checkout.LineItem) error {
	return checkout.ValidateLineItems(items)
}
