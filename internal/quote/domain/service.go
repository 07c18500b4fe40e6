package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Engine drives one quote request through the workflow. Run returns the
// draft even when it terminates in ERROR; only price-resolution faults
// propagate as errors.
type Engine interface {
	Run(ctx context.Context, req QuoteRequest) (*QuoteDraft, error)
	Get(ctx context.Context, id string) (*QuoteDraft, error)
	List(ctx context.Context, filter ListFilter) ([]QuoteDraft, error)
	// Document re-renders the quote PDF from the persisted draft.
	Document(ctx context.Context, id string) ([]byte, error)
}

type ListFilter struct {
	ClientCode string
	State      WorkflowState
	Limit      int
}

// DraftStore persists finished drafts for audit.
type DraftStore interface {
	Save(ctx context.Context, db *gorm.DB, draft *QuoteDraft) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*QuoteDraft, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]QuoteDraft, error)
}

var (
	ErrInvalidRequest     = errors.New("invalid_quote_request")
	ErrInvalidID          = errors.New("invalid_id")
	ErrNotFound           = errors.New("not_found")
	ErrWorkflowStepFailed = errors.New("workflow_step_failed")
)
