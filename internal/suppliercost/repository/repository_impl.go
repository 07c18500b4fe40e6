package repository

import (
	"context"
	"errors"
	"fmt"

	suppliercostdomain "github.com/quotabl/quotabl/internal/suppliercost/domain"
	"gorm.io/gorm"
)

type costSource struct {
	db *gorm.DB
}

func ProvideCostSource(db *gorm.DB) suppliercostdomain.CostSource {
	return &costSource{db: db}
}

func (r *costSource) Cost(ctx context.Context, article string) (*float64, error) {
	var record suppliercostdomain.SupplierCost
	err := r.db.WithContext(ctx).
		Where("article_code = ?", article).
		Order("observed_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record.UnitCost, nil
}

// sqlFunctionRecommender invokes a database pricing function some deployments
// expose. Function name comes from configuration; empty disables it.
type sqlFunctionRecommender struct {
	db       *gorm.DB
	function string
}

func NewSQLFunctionRecommender(db *gorm.DB, function string) suppliercostdomain.Recommender {
	if function == "" {
		return nil
	}
	return &sqlFunctionRecommender{db: db, function: function}
}

type recommendationRow struct {
	UnitPrice     *float64 `gorm:"column:unit_price"`
	Currency      string   `gorm:"column:currency"`
	Justification string   `gorm:"column:justification"`
}

func (r *sqlFunctionRecommender) Recommend(ctx context.Context, article, customer string) (*suppliercostdomain.Recommendation, error) {
	var row recommendationRow
	query := fmt.Sprintf("SELECT unit_price, currency, justification FROM %s(?, ?)", r.function)
	err := r.db.WithContext(ctx).Raw(query, article, customer).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.UnitPrice == nil || *row.UnitPrice <= 0 {
		return nil, nil
	}
	return &suppliercostdomain.Recommendation{
		UnitPrice:     *row.UnitPrice,
		Currency:      row.Currency,
		Justification: row.Justification,
	}, nil
}
