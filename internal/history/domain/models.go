package domain

import (
	"math"
	"time"
)

// StabilityThresholdPercent is the fixed cutoff below which a supplier cost
// move counts as stable. It is a property of the decision tree, not policy.
const StabilityThresholdPercent = 5.0

// SaleRecord is the most recent sale of an article to a specific customer.
type SaleRecord struct {
	CustomerCode   string
	CustomerName   string
	ArticleCode    string
	Quantity       float64
	UnitPrice      float64
	Currency       string
	DocumentNumber string
	SaleDate       time.Time
}

// WeightedSale is a sale to another customer, weighted by recency and volume.
// Used transiently to compute a weighted mean; never persisted.
type WeightedSale struct {
	CustomerCode string
	CustomerName string
	UnitPrice    float64
	Quantity     float64
	SaleDate     time.Time
	Weight       float64
}

// ComputeWeight averages a recency factor (full weight today, zero at 360
// days) with a quantity factor (full weight at 10 units), rounded to 3
// decimals.
func ComputeWeight(saleDate time.Time, quantity float64, now time.Time) float64 {
	daysOld := now.Sub(saleDate).Hours() / 24
	recency := math.Max(0, 1-daysOld/360)
	volume := math.Min(1, quantity/10)
	return round3((recency + volume) / 2)
}

// PriceVariation compares the current supplier cost against the most recent
// purchase.
type PriceVariation struct {
	PreviousCost     float64
	CurrentCost      float64
	VariationPercent float64
	IsStable         bool
	PreviousCostDate time.Time
}

// NewPriceVariation derives the variation percent and stability flag.
func NewPriceVariation(previousCost, currentCost float64, previousDate time.Time) PriceVariation {
	variation := 0.0
	if previousCost != 0 {
		variation = round2((currentCost - previousCost) / previousCost * 100)
	}
	return PriceVariation{
		PreviousCost:     previousCost,
		CurrentCost:      currentCost,
		VariationPercent: variation,
		IsStable:         math.Abs(variation) < StabilityThresholdPercent,
		PreviousCostDate: previousDate,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
