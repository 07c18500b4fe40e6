package repository

import (
	"context"

	ledgerdomain "github.com/quotabl/quotabl/internal/ledger/domain"
	"gorm.io/gorm"
)

type salesLedger struct {
	db *gorm.DB
}

func ProvideSalesLedger(db *gorm.DB) ledgerdomain.SalesLedger {
	return &salesLedger{db: db}
}

func (r *salesLedger) QueryInvoiceLines(ctx context.Context, q ledgerdomain.LineQuery) ([]ledgerdomain.SalesInvoiceLine, error) {
	var lines []ledgerdomain.SalesInvoiceLine
	stmt := r.db.WithContext(ctx).
		Where("article_code = ?", q.Article).
		Where("document_date >= ?", q.DateFrom)
	if q.Customer != nil {
		stmt = stmt.Where("customer_code = ?", *q.Customer)
	}
	if q.ExcludeCustomer != nil {
		stmt = stmt.Where("customer_code <> ?", *q.ExcludeCustomer)
	}
	stmt = stmt.Order("document_date DESC")
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}
	if err := stmt.Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

type purchaseLedger struct {
	db *gorm.DB
}

func ProvidePurchaseLedger(db *gorm.DB) ledgerdomain.PurchaseLedger {
	return &purchaseLedger{db: db}
}

func (r *purchaseLedger) QueryInvoiceLines(ctx context.Context, q ledgerdomain.LineQuery) ([]ledgerdomain.PurchaseInvoiceLine, error) {
	var lines []ledgerdomain.PurchaseInvoiceLine
	stmt := r.db.WithContext(ctx).
		Where("article_code = ?", q.Article).
		Where("document_date >= ?", q.DateFrom).
		Order("document_date DESC")
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}
	if err := stmt.Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}
