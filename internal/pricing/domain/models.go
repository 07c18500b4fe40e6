package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PriceCase is the closed set of branches the decision tree can take.
type PriceCase string

const (
	CaseSAPFunction     PriceCase = "SAP_FUNCTION"
	CaseStableHistory   PriceCase = "CAS_1_STABLE_HISTORY"
	CaseModifiedHistory PriceCase = "CAS_2_MODIFIED_HISTORY"
	CaseOthersHistory   PriceCase = "CAS_3_OTHERS_HISTORY"
	CaseNewProduct      PriceCase = "CAS_4_NEW_PRODUCT"
	CaseManual          PriceCase = "MANUAL"
)

// ParseCase validates a stored or user-supplied case string.
func ParseCase(value string) (PriceCase, error) {
	switch PriceCase(value) {
	case CaseSAPFunction, CaseStableHistory, CaseModifiedHistory,
		CaseOthersHistory, CaseNewProduct, CaseManual:
		return PriceCase(value), nil
	default:
		return "", ErrInvalidCase
	}
}

// PricingContext is the ephemeral input of one CalculatePrice call.
type PricingContext struct {
	ArticleCode  string   `json:"article_code"`
	CustomerCode string   `json:"customer_code"`
	Quantity     float64  `json:"quantity"`
	SupplierCost *float64 `json:"supplier_cost,omitempty"`

	// Optional enrichment.
	LeadTimeDays  *int     `json:"lead_time_days,omitempty"`
	TransportCost *float64 `json:"transport_cost,omitempty"`
	SupplierCode  string   `json:"supplier_code,omitempty"`
	SupplierName  string   `json:"supplier_name,omitempty"`

	// MarginPercent 0 means "use the policy default".
	MarginPercent    float64 `json:"margin_percent,omitempty"`
	ForceRecalculate bool    `json:"force_recalculate,omitempty"`

	SourceMessageID string `json:"source_message_id,omitempty"`
	SourceSubject   string `json:"source_subject,omitempty"`
	RequestedBy     string `json:"requested_by,omitempty"`
}

// PricingDecision is one priced line, immutable once produced except for the
// manual-override fields (price, margin, justification), which only change
// through ManualOverride and always leave a revision row behind.
type PricingDecision struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	ArticleCode  string       `json:"article_code" gorm:"type:text;not null;index:idx_pricing_decisions_article_customer,priority:1"`
	CustomerCode string       `json:"customer_code" gorm:"type:text;not null;index:idx_pricing_decisions_article_customer,priority:2"`
	Quantity     float64      `json:"quantity" gorm:"not null"`

	PriceCase     PriceCase `json:"price_case" gorm:"type:text;not null"`
	UnitPrice     float64   `json:"unit_price" gorm:"not null"`
	LineTotal     float64   `json:"line_total" gorm:"not null"`
	Currency      string    `json:"currency" gorm:"type:text;not null;default:'EUR'"`
	Justification string    `json:"justification" gorm:"type:text;not null"`
	Confidence    float64   `json:"confidence" gorm:"not null"`

	SupplierCost  *float64 `json:"supplier_cost,omitempty"`
	MarginPercent float64  `json:"margin_percent" gorm:"not null"`

	LastSaleDate     *time.Time `json:"last_sale_date,omitempty"`
	LastSalePrice    *float64   `json:"last_sale_price,omitempty"`
	LastSaleDocument *string    `json:"last_sale_document,omitempty" gorm:"type:text"`

	PreviousCost     *float64   `json:"previous_cost,omitempty"`
	CurrentCost      *float64   `json:"current_cost,omitempty"`
	VariationPercent *float64   `json:"variation_percent,omitempty"`
	CostStable       *bool      `json:"cost_stable,omitempty"`
	PreviousCostDate *time.Time `json:"previous_cost_date,omitempty"`

	WeightedAverage *float64 `json:"weighted_average,omitempty"`
	ReferenceSales  int      `json:"reference_sales" gorm:"not null;default:0"`

	RequiresValidation bool           `json:"requires_validation" gorm:"not null;default:false"`
	ValidationReason   string         `json:"validation_reason,omitempty" gorm:"type:text"`
	Alerts             datatypes.JSON `json:"alerts,omitempty" gorm:"type:jsonb"`

	QuoteDocument *string `json:"quote_document,omitempty" gorm:"type:text"`
	CreatedBy     string  `json:"created_by" gorm:"type:text;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PricingDecision) TableName() string { return "pricing_decisions" }

// DecisionRevision traces a manual override with the full before/after.
type DecisionRevision struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	DecisionID snowflake.ID `json:"decision_id" gorm:"not null;index"`

	PriceBefore         float64 `json:"price_before" gorm:"not null"`
	PriceAfter          float64 `json:"price_after" gorm:"not null"`
	MarginBefore        float64 `json:"margin_before" gorm:"not null"`
	MarginAfter         float64 `json:"margin_after" gorm:"not null"`
	JustificationBefore string  `json:"justification_before" gorm:"type:text;not null"`
	JustificationAfter  string  `json:"justification_after" gorm:"type:text;not null"`
	OverriddenBy        string  `json:"overridden_by" gorm:"type:text;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DecisionRevision) TableName() string { return "pricing_decision_revisions" }

// RoundMoney rounds to 2 decimals. Applied after every arithmetic step so the
// stored numbers match the justification text exactly.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// MarginOnCost is the markup percentage implied by a price over a cost,
// rounded to 2 decimals.
func MarginOnCost(price, cost float64) float64 {
	if cost == 0 {
		return 0
	}
	return RoundMoney((price - cost) / cost * 100)
}

// PriceWithMargin is cost marked up by marginPercent, rounded to 2 decimals.
func PriceWithMargin(cost, marginPercent float64) float64 {
	return RoundMoney(cost * (1 + marginPercent/100))
}
