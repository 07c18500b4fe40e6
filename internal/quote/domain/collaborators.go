package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Client is a customer record in the reference directory.
type Client struct {
	ID      snowflake.ID `json:"id" gorm:"primaryKey"`
	Code    string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name    string       `json:"name" gorm:"type:text;not null"`
	Country string       `json:"country" gorm:"type:text"`
	Email   string       `json:"email" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Client) TableName() string { return "clients" }

// Product is an article in the reference catalog.
type Product struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	Code                string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name                string       `json:"name" gorm:"type:text;not null"`
	WeightKg            float64      `json:"weight_kg" gorm:"not null;default:0"`
	DefaultSupplierCode string       `json:"default_supplier_code" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }

// Supplier carries the negotiated discount applied to its list costs.
type Supplier struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	Code            string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name            string       `json:"name" gorm:"type:text;not null"`
	Currency        string       `json:"currency" gorm:"type:text;not null;default:'EUR'"`
	DiscountPercent float64      `json:"discount_percent" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Supplier) TableName() string { return "suppliers" }

// ExchangeRate is a fixed conversion rate row; the most recent row per pair
// wins.
type ExchangeRate struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	FromCurrency string       `json:"from_currency" gorm:"type:text;not null;index:idx_exchange_rates_pair,priority:1"`
	ToCurrency   string       `json:"to_currency" gorm:"type:text;not null;index:idx_exchange_rates_pair,priority:2"`
	Rate         float64      `json:"rate" gorm:"not null"`

	EffectiveAt time.Time `json:"effective_at" gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ExchangeRate) TableName() string { return "exchange_rates" }

// TransportOption is one carrier tariff: flat base plus a per-kg rate, bounded
// by MaxWeightKg.
type TransportOption struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Carrier      string       `json:"carrier" gorm:"type:text;not null"`
	Country      string       `json:"country" gorm:"type:text;not null;index"`
	BaseCost     float64      `json:"base_cost" gorm:"not null"`
	CostPerKg    float64      `json:"cost_per_kg" gorm:"not null"`
	MaxWeightKg  float64      `json:"max_weight_kg" gorm:"not null"`
	DeliveryDays int          `json:"delivery_days" gorm:"not null"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TransportOption) TableName() string { return "transport_options" }

// PriceFor is this option's total cost for a shipment weight.
func (t TransportOption) PriceFor(weightKg float64) float64 {
	return t.BaseCost + t.CostPerKg*weightKg
}

// ClientDirectory resolves and creates clients. FindByCode returns (nil, nil)
// when absent so the engine can branch to CLIENT_CREATED.
type ClientDirectory interface {
	FindByCode(ctx context.Context, code string) (*Client, error)
	Create(ctx context.Context, client *Client) error
}

type ProductCatalog interface {
	FindByCode(ctx context.Context, code string) (*Product, error)
}

type SupplierDirectory interface {
	FindByCode(ctx context.Context, code string) (*Supplier, error)
}

// RateSource converts between currencies using the stored fixed rates.
// Rate(X, X) is always 1.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// TransportRater picks the cheapest option able to carry the shipment.
type TransportRater interface {
	CheapestOption(ctx context.Context, country string, weightKg float64) (*TransportOption, error)
}

// Renderer turns a finished draft into the customer-facing quote document.
type Renderer interface {
	Render(draft *QuoteDraft) ([]byte, error)
}
