package domain

import (
	"context"
	"errors"
	"time"

	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
	"gorm.io/gorm"
)

// Service owns the commercial sign-off workflow for flagged pricing
// decisions.
type Service interface {
	// CreateRequest derives priority and expiration from the decision and
	// persists the request. tx joins the caller's transaction when non-nil.
	CreateRequest(ctx context.Context, tx *gorm.DB, decision *pricingdomain.PricingDecision, corr *SourceCorrelation) (*ValidationRequest, error)

	// Decide records the human verdict. A request in a terminal state
	// returns ErrAlreadyDecided and stays untouched.
	Decide(ctx context.Context, id string, verdict VerdictRequest) (*ValidationRequest, error)

	// ExpireStale flips every pending request past its deadline to expired.
	// Idempotent; safe on any schedule.
	ExpireStale(ctx context.Context) (int, error)

	Get(ctx context.Context, id string) (*ValidationRequest, error)
	List(ctx context.Context, filter ListFilter) ([]ValidationRequest, error)
	Statistics(ctx context.Context, windowDays int) (*Statistics, error)
}

type VerdictRequest struct {
	Status         Status   `json:"status"`
	ApprovedPrice  *float64 `json:"approved_price,omitempty"`
	ApprovedMargin *float64 `json:"approved_margin,omitempty"`
	Comment        string   `json:"comment,omitempty"`
	ValidatedBy    string   `json:"validated_by"`
}

type ListFilter struct {
	Status   Status
	Priority Priority
	Limit    int
}

type Statistics struct {
	WindowDays         int                `json:"window_days"`
	Total              int64              `json:"total"`
	ByStatus           map[Status]int64   `json:"by_status"`
	ByPriority         map[Priority]int64 `json:"by_priority"`
	ByCase             map[string]int64   `json:"by_case"`
	ApprovalRate       float64            `json:"approval_rate"`
	RejectionRate      float64            `json:"rejection_rate"`
	MeanTimeToDecision time.Duration      `json:"mean_time_to_decision"`
}

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("not_found")
	ErrAlreadyDecided  = errors.New("already_decided")
	ErrInvalidVerdict  = errors.New("invalid_verdict")
	ErrInvalidDecision = errors.New("invalid_decision")
)
