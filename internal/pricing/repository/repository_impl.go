package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, decision *pricingdomain.PricingDecision) error {
	return db.WithContext(ctx).Create(decision).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pricingdomain.PricingDecision, error) {
	var decision pricingdomain.PricingDecision
	err := db.WithContext(ctx).Where("id = ?", id).First(&decision).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &decision, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter pricingdomain.ListFilter) ([]pricingdomain.PricingDecision, error) {
	stmt := db.WithContext(ctx).Model(&pricingdomain.PricingDecision{})
	if filter.ArticleCode != "" {
		stmt = stmt.Where("article_code = ?", filter.ArticleCode)
	}
	if filter.CustomerCode != "" {
		stmt = stmt.Where("customer_code = ?", filter.CustomerCode)
	}
	if filter.Case != "" {
		stmt = stmt.Where("price_case = ?", filter.Case)
	}
	if filter.RequiresValidation != nil {
		stmt = stmt.Where("requires_validation = ?", *filter.RequiresValidation)
	}
	if filter.Since != nil {
		stmt = stmt.Where("created_at >= ?", *filter.Since)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var decisions []pricingdomain.PricingDecision
	err := stmt.Order("created_at DESC").Limit(limit).Find(&decisions).Error
	if err != nil {
		return nil, err
	}
	return decisions, nil
}

// ApplyOverride updates only the override-mutable columns and appends the
// revision in one transaction. created_at stays untouched.
func (r *repo) ApplyOverride(ctx context.Context, db *gorm.DB, decision *pricingdomain.PricingDecision, revision *pricingdomain.DecisionRevision) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&pricingdomain.PricingDecision{}).
			Where("id = ?", decision.ID).
			Updates(map[string]any{
				"price_case":     decision.PriceCase,
				"unit_price":     decision.UnitPrice,
				"line_total":     decision.LineTotal,
				"margin_percent": decision.MarginPercent,
				"justification":  decision.Justification,
				"updated_at":     decision.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return pricingdomain.ErrNotFound
		}
		return tx.Create(revision).Error
	})
}

func (r *repo) ListRevisions(ctx context.Context, db *gorm.DB, decisionID snowflake.ID) ([]pricingdomain.DecisionRevision, error) {
	var revisions []pricingdomain.DecisionRevision
	err := db.WithContext(ctx).
		Where("decision_id = ?", decisionID).
		Order("created_at ASC").
		Find(&revisions).Error
	if err != nil {
		return nil, err
	}
	return revisions, nil
}

func (r *repo) Aggregate(ctx context.Context, db *gorm.DB, since time.Time) ([]pricingdomain.CaseAggregate, error) {
	var rows []pricingdomain.CaseAggregate
	err := db.WithContext(ctx).Model(&pricingdomain.PricingDecision{}).
		Select(`price_case,
			COUNT(*) AS count,
			SUM(CASE WHEN requires_validation THEN 1 ELSE 0 END) AS flagged,
			SUM(confidence) AS sum_confidence`).
		Where("created_at >= ?", since).
		Group("price_case").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
