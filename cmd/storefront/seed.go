package main

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-storefront/internal/products"
)

func demoCatalog() []products.Product {
	discounted := decimal.NewFromInt(19000)
	return []products.Product{
		{ID: 1, Name: "Blue Dream 3.5g", Price: decimal.NewFromInt(25000), Stock: 40, SellerID: 7, SellerName: "North Coast Supply"},
		{ID: 2, Name: "Sour Diesel Pre-Roll", Price: decimal.NewFromInt(1200), Stock: 120, SellerID: 7, SellerName: "North Coast Supply"},
		{ID: 3, Name: "OG Kush 7g", Price: decimal.NewFromInt(22000), DiscountedPrice: &discounted, Stock: 15, SellerID: 8, SellerName: "Valley Farms"},
		{ID: 4, Name: "Rolling Papers", Price: decimal.NewFromInt(800), Stock: 500, SellerID: 9, SellerName: "Corner Accessories"},
		{ID: 5, Name: "Sample Pack", Price: decimal.Zero, Stock: 10, SellerID: 9, SellerName: "Corner Accessories"},
	}
}
