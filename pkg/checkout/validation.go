package checkout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
)

// MaxNoteLength bounds the free-text note attached to a checkout.
const MaxNoteLength = 500

// LineItem is one product sent to the order service. The seller travels with
// the item so orders can be split downstream.
type LineItem struct {
	ProductID  int64           `json:"productId"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	SellerID   int64           `json:"sellerId"`
	SellerName string          `json:"sellerName,omitempty"`
}

// Total is price times quantity.
func (l LineItem) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineItemViolation exposes the data returned to callers when a validation fails.
type LineItemViolation struct {
	ProductID int64  `json:"product_id"`
	Reason    string `json:"reason"`
}

// ValidateLineItems ensures every line can be priced and attributed to a seller.
func ValidateLineItems(items []LineItem) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeEmptyCart, "no items to check out")
	}
	var violations []LineItemViolation
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		switch {
		case item.ProductID <= 0:
			violations = append(violations, LineItemViolation{ProductID: item.ProductID, Reason: "invalid product id"})
		case item.Quantity <= 0:
			violations = append(violations, LineItemViolation{ProductID: item.ProductID, Reason: "quantity must be positive"})
		case item.Price.IsNegative():
			violations = append(violations, LineItemViolation{ProductID: item.ProductID, Reason: "price must not be negative"})
		case item.SellerID <= 0:
			violations = append(violations, LineItemViolation{ProductID: item.ProductID, Reason: "seller required"})
		}
		if _, dup := seen[item.ProductID]; dup {
			violations = append(violations, LineItemViolation{ProductID: item.ProductID, Reason: "duplicate product"})
		}
		seen[item.ProductID] = struct{}{}
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid checkout items: %d violation(s)", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}

// ValidateNote trims the note and enforces its length.
func ValidateNote(note string) (string, error) {
	note = strings.TrimSpace(note)
	if len([]rune(note)) > MaxNoteLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("note exceeds %d characters", MaxNoteLength))
	}
	return note, nil
}
