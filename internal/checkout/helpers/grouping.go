package helpers

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-storefront/pkg/checkout"
)

// GroupItemsBySeller groups the provided line items by their seller.
func GroupItemsBySeller(items []checkout.LineItem) map[int64][]checkout.LineItem {
	grouped := make(map[int64][]checkout.LineItem, len(items))
	for _, item := range items {
		grouped[item.SellerID] = append(grouped[item.SellerID], item)
	}
	return grouped
}

// SellerTotals captures pre-calculated totals for a seller.
type SellerTotals struct {
	SellerID   int64
	SellerName string
	Total      decimal.Decimal
	ItemCount  int
	Quantity   int
}

// ComputeSellerTotals computes the total and counts for one seller's items.
func ComputeSellerTotals(items []checkout.LineItem) SellerTotals {
	totals := SellerTotals{Total: decimal.Zero}
	if len(items) == 0 {
		return totals
	}
	totals.SellerID = items[0].SellerID
	totals.SellerName = items[0].SellerName
	for _, item := range items {
		totals.Total = totals.Total.Add(item.Total())
		totals.ItemCount++
		totals.Quantity += item.Quantity
	}
	return totals
}

// ComputeTotalsBySeller returns pre-computed totals keyed by seller.
func ComputeTotalsBySeller(items []checkout.LineItem) map[int64]SellerTotals {
	results := make(map[int64]SellerTotals)
	for sellerID, group := range GroupItemsBySeller(items) {
		results[sellerID] = ComputeSellerTotals(group)
	}
	return results
}

// SellerOrder lists seller ids in first-seen order.
func SellerOrder(items []checkout.LineItem) []int64 {
	seen := make(map[int64]struct{})
	order := make([]int64, 0)
	for _, item := range items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		order = append(order, item.SellerID)
	}
	return order
}

// SortedSellerIDs returns the keys of grouped in ascending order.
func SortedSellerIDs[T any](grouped map[int64]T) []int64 {
	ids := make([]int64, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
