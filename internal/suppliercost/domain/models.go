package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SupplierCost is the latest observed purchase cost of an article.
type SupplierCost struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	ArticleCode  string       `gorm:"type:text;not null;index"`
	SupplierCode string       `gorm:"type:text;not null"`
	UnitCost     float64      `gorm:"not null"`
	Currency     string       `gorm:"type:text;not null;default:'EUR'"`
	LeadTimeDays *int         `gorm:""`
	ObservedAt   time.Time    `gorm:"not null"`
}

func (SupplierCost) TableName() string { return "supplier_costs" }

// CostSource resolves the current supplier unit cost of an article. A nil
// result with nil error means no cost is known.
type CostSource interface {
	Cost(ctx context.Context, article string) (*float64, error)
}

// Recommendation is the verdict of an external pricing function, decoded once
// at the boundary. A nil *Recommendation means "no recommendation"; callers
// never see the raw result shape.
type Recommendation struct {
	UnitPrice     float64
	Currency      string
	Justification string
}

// Recommender is the optional pricing function consulted before the decision
// tree.
type Recommender interface {
	Recommend(ctx context.Context, article, customer string) (*Recommendation, error)
}
