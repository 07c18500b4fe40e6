package domain

import (
	"context"
)

const (
	DefaultSalesLookbackDays    = 365
	DefaultPurchaseLookbackDays = 180
	DefaultOtherSalesLimit      = 50
)

// Service answers history questions for the pricing decision tree. Ledger
// failures surface as "no data", never as errors: absence of history is a
// valid input to the tree.
type Service interface {
	LastSaleToCustomer(ctx context.Context, article, customer string, lookbackDays int) (*SaleRecord, error)
	SalesToOtherCustomers(ctx context.Context, article, excludeCustomer string, lookbackDays, limit int) ([]WeightedSale, error)
	WeightedAveragePrice(sales []WeightedSale) (float64, bool)
	SupplierPriceVariation(ctx context.Context, article string, currentCost float64, lookbackDays int) (*PriceVariation, error)
}
