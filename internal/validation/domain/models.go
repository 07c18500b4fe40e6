package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type RequestType string

const TypePricing RequestType = "pricing"

// Priority is derived from the decision, never chosen by the caller.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusModified Status = "modified"
	StatusExpired  Status = "expired"
)

// Terminal reports whether a status admits no further transition.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// ValidationRequest asks a human to sign off on a flagged pricing decision.
// Status transitions exactly once, from pending to a terminal state.
type ValidationRequest struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	DecisionID snowflake.ID `json:"decision_id" gorm:"not null;index"`

	RequestType RequestType `json:"request_type" gorm:"type:text;not null;default:'pricing'"`
	Priority    Priority    `json:"priority" gorm:"type:text;not null"`
	Status      Status      `json:"status" gorm:"type:text;not null;default:'pending';index"`

	// ContextSnapshot carries everything a reviewer needs: article and
	// customer, quantities, prices, margins, case, justification, alerts,
	// last-sale reference and variation percent.
	ContextSnapshot datatypes.JSON `json:"context_snapshot" gorm:"type:jsonb;not null"`

	RequestedBy     string  `json:"requested_by" gorm:"type:text;not null"`
	SourceMessageID *string `json:"source_message_id,omitempty" gorm:"type:text"`
	SourceSubject   *string `json:"source_subject,omitempty" gorm:"type:text"`

	RequestedAt time.Time  `json:"requested_at" gorm:"not null"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null;index"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ValidationRequest) TableName() string { return "validation_requests" }

// ValidationDecision is the human verdict. Append-only, one per request.
type ValidationDecision struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	RequestID snowflake.ID `json:"request_id" gorm:"not null;index"`

	Status         Status   `json:"status" gorm:"type:text;not null"`
	ApprovedPrice  *float64 `json:"approved_price,omitempty"`
	ApprovedMargin *float64 `json:"approved_margin,omitempty"`
	Comment        string   `json:"comment,omitempty" gorm:"type:text"`
	ValidatedBy    string   `json:"validated_by" gorm:"type:text;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ValidationDecision) TableName() string { return "validation_decisions" }

// ContextSnapshot is the reviewer-facing view serialized into the request.
type ContextSnapshot struct {
	ArticleCode      string   `json:"article_code"`
	CustomerCode     string   `json:"customer_code"`
	Quantity         float64  `json:"quantity"`
	PriceCase        string   `json:"price_case"`
	UnitPrice        float64  `json:"unit_price"`
	LineTotal        float64  `json:"line_total"`
	Currency         string   `json:"currency"`
	MarginPercent    float64  `json:"margin_percent"`
	SupplierCost     *float64 `json:"supplier_cost,omitempty"`
	Justification    string   `json:"justification"`
	ValidationReason string   `json:"validation_reason,omitempty"`
	Alerts           []string `json:"alerts,omitempty"`

	LastSaleDate     *time.Time `json:"last_sale_date,omitempty"`
	LastSalePrice    *float64   `json:"last_sale_price,omitempty"`
	LastSaleDocument *string    `json:"last_sale_document,omitempty"`
	VariationPercent *float64   `json:"variation_percent,omitempty"`
}

// SourceCorrelation links a request back to the message that triggered it.
type SourceCorrelation struct {
	MessageID string `json:"message_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
}
