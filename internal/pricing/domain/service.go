package domain

import (
	"context"
	"errors"
	"time"
)

// Service is the pricing decision engine and the query surface of its audit
// store.
type Service interface {
	// CalculatePrice runs the decision tree and persists the resulting
	// decision. History is always read to completion before anything is
	// written.
	CalculatePrice(ctx context.Context, pctx PricingContext) (*PricingDecision, error)

	GetDecision(ctx context.Context, id string) (*PricingDecision, error)
	ListDecisions(ctx context.Context, filter ListFilter) ([]PricingDecision, error)
	Statistics(ctx context.Context, windowDays int) (*Statistics, error)

	// ManualOverride replaces price/margin/justification on an existing
	// decision, flips its case to MANUAL, and appends a revision row.
	// CreatedAt is never touched.
	ManualOverride(ctx context.Context, id string, req OverrideRequest) (*PricingDecision, error)
}

type ListFilter struct {
	ArticleCode        string
	CustomerCode       string
	Case               string
	RequiresValidation *bool
	Since              *time.Time
	Limit              int
}

type OverrideRequest struct {
	UnitPrice     float64 `json:"unit_price"`
	MarginPercent float64 `json:"margin_percent"`
	Justification string  `json:"justification"`
	OverriddenBy  string  `json:"overridden_by"`
}

type Statistics struct {
	WindowDays      int                 `json:"window_days"`
	TotalDecisions  int64               `json:"total_decisions"`
	ByCase          map[PriceCase]int64 `json:"by_case"`
	FlaggedDecision int64               `json:"flagged_decisions"`
	ValidationRate  float64             `json:"validation_rate"`
	MeanConfidence  float64             `json:"mean_confidence"`
}

var (
	ErrInvalidContext   = errors.New("invalid_pricing_context")
	ErrInvalidCase      = errors.New("invalid_price_case")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
	ErrPriceUnavailable = errors.New("price_unavailable")
	ErrPricingFailed    = errors.New("pricing_failed")
	ErrInvalidOverride  = errors.New("invalid_override")
)
