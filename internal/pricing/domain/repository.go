package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the durable pricing audit store. Decisions are append-mostly:
// only manual-override fields change after insert, and every change appends a
// revision.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, decision *PricingDecision) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PricingDecision, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]PricingDecision, error)
	ApplyOverride(ctx context.Context, db *gorm.DB, decision *PricingDecision, revision *DecisionRevision) error
	ListRevisions(ctx context.Context, db *gorm.DB, decisionID snowflake.ID) ([]DecisionRevision, error)
	Aggregate(ctx context.Context, db *gorm.DB, since time.Time) ([]CaseAggregate, error)
}

// CaseAggregate is one GROUP BY row of the statistics query.
type CaseAggregate struct {
	PriceCase     PriceCase `gorm:"column:price_case"`
	Count         int64     `gorm:"column:count"`
	Flagged       int64     `gorm:"column:flagged"`
	SumConfidence float64   `gorm:"column:sum_confidence"`
}
