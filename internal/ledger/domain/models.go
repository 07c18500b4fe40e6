// Package domain defines the external sales and purchase ledgers the pricing
// core reads history from. The gorm adapters in repository/ stand in for the
// ERP; deployments pointing at a live ERP swap the fx binding.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SalesInvoiceLine is one line of a historical sales invoice.
type SalesInvoiceLine struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	DocumentNumber string       `gorm:"type:text;not null"`
	CustomerCode   string       `gorm:"type:text;not null;index"`
	CustomerName   string       `gorm:"type:text"`
	ArticleCode    string       `gorm:"type:text;not null;index"`
	Quantity       float64      `gorm:"not null"`
	UnitPrice      float64      `gorm:"not null"`
	Currency       string       `gorm:"type:text;not null;default:'EUR'"`
	DocumentDate   time.Time    `gorm:"not null;index"`
}

func (SalesInvoiceLine) TableName() string { return "sales_invoice_lines" }

// PurchaseInvoiceLine is one line of a historical purchase invoice.
type PurchaseInvoiceLine struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	DocumentNumber string       `gorm:"type:text;not null"`
	SupplierCode   string       `gorm:"type:text;not null"`
	ArticleCode    string       `gorm:"type:text;not null;index"`
	Quantity       float64      `gorm:"not null"`
	UnitPrice      float64      `gorm:"not null"`
	Currency       string       `gorm:"type:text;not null;default:'EUR'"`
	DocumentDate   time.Time    `gorm:"not null;index"`
}

func (PurchaseInvoiceLine) TableName() string { return "purchase_invoice_lines" }

// LineQuery filters ledger lines. Customer and ExcludeCustomer are mutually
// exclusive; both nil means all customers.
type LineQuery struct {
	Article         string
	Customer        *string
	ExcludeCustomer *string
	DateFrom        time.Time
	Limit           int
}

type SalesLedger interface {
	QueryInvoiceLines(ctx context.Context, q LineQuery) ([]SalesInvoiceLine, error)
}

type PurchaseLedger interface {
	QueryInvoiceLines(ctx context.Context, q LineQuery) ([]PurchaseInvoiceLine, error)
}
