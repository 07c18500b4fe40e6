package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// WorkflowState is the closed set of states a quote run moves through. The
// happy path is strictly forward; ERROR is reachable from anywhere.
type WorkflowState string

const (
	StateReceived           WorkflowState = "RECEIVED"
	StateClientIdentified   WorkflowState = "CLIENT_IDENTIFIED"
	StateClientCreated      WorkflowState = "CLIENT_CREATED"
	StateProductIdentified  WorkflowState = "PRODUCT_IDENTIFIED"
	StateSupplierIdentified WorkflowState = "SUPPLIER_IDENTIFIED"
	StateSupplierPriced     WorkflowState = "SUPPLIER_PRICED"
	StateHistoricalDone     WorkflowState = "HISTORICAL_ANALYSIS_DONE"
	StateCaseSelected       WorkflowState = "PRICING_CASE_SELECTED"
	StatePricingDone        WorkflowState = "PRICING_INTELLIGENT_DONE"
	StateCurrencyApplied    WorkflowState = "CURRENCY_APPLIED"
	StateDiscountApplied    WorkflowState = "SUPPLIER_DISCOUNT_APPLIED"
	StateMarginApplied      WorkflowState = "MARGIN_APPLIED"
	StateTransportOptimized WorkflowState = "TRANSPORT_OPTIMIZED"
	StateJustificationBuilt WorkflowState = "JUSTIFICATION_BUILT"
	StateCoherenceValidated WorkflowState = "COHERENCE_VALIDATED"
	StateQuoteGenerated     WorkflowState = "QUOTE_GENERATED"
	StateManualValidation   WorkflowState = "MANUAL_VALIDATION_REQUIRED"
	StateQuoteSent          WorkflowState = "QUOTE_SENT"
	StateError              WorkflowState = "ERROR"
)

// Terminal reports whether the run stops in this state.
func (s WorkflowState) Terminal() bool {
	switch s {
	case StateQuoteSent, StateManualValidation, StateError:
		return true
	default:
		return false
	}
}

// QuoteRequest is the intake of one quote run.
type QuoteRequest struct {
	CustomerCode string      `json:"customer_code"`
	CustomerName string      `json:"customer_name,omitempty"`
	Currency     string      `json:"currency,omitempty"`
	Lines        []QuoteLine `json:"lines"`

	MarginPercent float64 `json:"margin_percent,omitempty"`
	RequestedBy   string  `json:"requested_by,omitempty"`

	SourceMessageID string `json:"source_message_id,omitempty"`
	SourceSubject   string `json:"source_subject,omitempty"`
}

type QuoteLine struct {
	ArticleCode  string  `json:"article_code"`
	Quantity     float64 `json:"quantity"`
	SupplierCode string  `json:"supplier_code,omitempty"`
}

// LinePriceState is the per-article price accumulator. Each workflow step
// fills in its own slice of fields; nothing is ever reset.
type LinePriceState struct {
	ArticleCode  string  `json:"article_code"`
	ProductName  string  `json:"product_name,omitempty"`
	Quantity     float64 `json:"quantity"`
	WeightKg     float64 `json:"weight_kg,omitempty"`
	SupplierCode string  `json:"supplier_code,omitempty"`
	SupplierName string  `json:"supplier_name,omitempty"`

	SupplierCost    float64 `json:"supplier_cost,omitempty"`
	ExchangeRate    float64 `json:"exchange_rate,omitempty"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	NetCost         float64 `json:"net_cost,omitempty"`
	MarginPercent   float64 `json:"margin_percent,omitempty"`

	UnitPrice float64 `json:"unit_price,omitempty"`
	LineTotal float64 `json:"line_total,omitempty"`
	Currency  string  `json:"currency,omitempty"`

	PriceCase          string `json:"price_case,omitempty"`
	Justification      string `json:"justification,omitempty"`
	RequiresValidation bool   `json:"requires_validation,omitempty"`
	DecisionID         string `json:"decision_id,omitempty"`
}

// TraceEntry records one workflow transition: what was decided, why, and
// which data sources were consulted. Appended exactly once per transition.
type TraceEntry struct {
	State         WorkflowState `json:"state"`
	Decision      string        `json:"decision"`
	Justification string        `json:"justification,omitempty"`
	DataSources   []string      `json:"data_sources,omitempty"`
	Alerts        []string      `json:"alerts,omitempty"`
	At            time.Time     `json:"at"`
}

// QuoteDraft is the aggregate of one quote run, mutated step by step and
// terminal at QUOTE_SENT, MANUAL_VALIDATION_REQUIRED, or ERROR.
type QuoteDraft struct {
	ID          snowflake.ID  `json:"id"`
	QuoteNumber string        `json:"quote_number,omitempty"`
	State       WorkflowState `json:"state"`

	ClientCode    string `json:"client_code"`
	ClientName    string `json:"client_name,omitempty"`
	ClientCountry string `json:"client_country,omitempty"`

	Lines []LinePriceState `json:"lines"`

	TransportCarrier string  `json:"transport_carrier,omitempty"`
	TransportCost    float64 `json:"transport_cost,omitempty"`
	TransportDays    int     `json:"transport_days,omitempty"`

	Subtotal float64 `json:"subtotal"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`

	Trace         []TraceEntry `json:"trace"`
	Justification string       `json:"justification,omitempty"`
	Document      []byte       `json:"-"`

	RequestedBy string    `json:"requested_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AppendTrace adds one entry for the given state and moves the draft there.
func (d *QuoteDraft) AppendTrace(state WorkflowState, entry TraceEntry) {
	entry.State = state
	d.Trace = append(d.Trace, entry)
	d.State = state
	d.UpdatedAt = entry.At
}

// DraftRecord is the persisted form of a QuoteDraft, with the line states
// and the trace flattened to JSON for audit queries.
type DraftRecord struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	QuoteNumber string        `json:"quote_number" gorm:"type:text;index"`
	State       WorkflowState `json:"state" gorm:"type:text;not null;index"`

	ClientCode    string `json:"client_code" gorm:"type:text;not null;index"`
	ClientName    string `json:"client_name" gorm:"type:text"`
	ClientCountry string `json:"client_country" gorm:"type:text"`

	Lines datatypes.JSON `json:"lines" gorm:"type:jsonb;not null"`
	Trace datatypes.JSON `json:"trace" gorm:"type:jsonb;not null"`

	TransportCarrier string  `json:"transport_carrier" gorm:"type:text"`
	TransportCost    float64 `json:"transport_cost" gorm:"not null;default:0"`
	TransportDays    int     `json:"transport_days" gorm:"not null;default:0"`

	Subtotal      float64 `json:"subtotal" gorm:"not null"`
	Total         float64 `json:"total" gorm:"not null"`
	Currency      string  `json:"currency" gorm:"type:text;not null"`
	Justification string  `json:"justification" gorm:"type:text"`

	RequestedBy string    `json:"requested_by" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DraftRecord) TableName() string { return "quote_drafts" }
