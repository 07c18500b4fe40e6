// Package seed loads a small reference dataset so a fresh install can quote
// immediately: a handful of clients, articles, suppliers, carrier tariffs and
// ledger history. Idempotent; it never touches non-empty tables.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/quotabl/quotabl/internal/ledger/domain"
	quotedomain "github.com/quotabl/quotabl/internal/quote/domain"
	suppliercostdomain "github.com/quotabl/quotabl/internal/suppliercost/domain"
	"gorm.io/gorm"
)

// EnsureDemoData populates the reference and ledger tables when they are
// empty.
func EnsureDemoData(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedClients(tx, node); err != nil {
			return err
		}
		if err := seedProducts(tx, node); err != nil {
			return err
		}
		if err := seedSuppliers(tx, node); err != nil {
			return err
		}
		if err := seedTransportOptions(tx, node); err != nil {
			return err
		}
		if err := seedExchangeRates(tx, node); err != nil {
			return err
		}
		if err := seedSupplierCosts(tx, node); err != nil {
			return err
		}
		return seedLedger(tx, node)
	})
}

func tableEmpty(tx *gorm.DB, model any) (bool, error) {
	var count int64
	if err := tx.Model(model).Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

func seedClients(tx *gorm.DB, node *snowflake.Node) error {
	empty, err := tableEmpty(tx, &quotedomain.Client{})
	if err != nil || !empty {
		return err
	}
	now := time.Now().UTC()
	clients := []quotedomain.Client{
		{ID: node.Generate(), Code: "CL-ALDORA", Name: "Aldora SA", Country: "FR", Email: "achats@aldora.example", CreatedAt: now},
		{ID: node.Generate(), Code: "CL-BRAVIA", Name: "Bravia GmbH", Country: "DE", Email: "einkauf@bravia.example", CreatedAt: now},
		{ID: node.Generate(), Code: "CL-CORMAC", Name: "Cormac Ltd", Country: "IE", Email: "purchasing@cormac.example", CreatedAt: now},
	}
	return tx.Create(&clients).Error
}

func seedProducts(tx *gorm.DB, node *snowflake.Node) error {
	empty, err := tableEmpty(tx, &quotedomain.Product{})
	if err != nil || !empty {
		return err
	}
	now := time.Now().UTC()
	products := []quotedomain.Product{
		{ID: node.Generate(), Code: "ART-6204", Name: "Bearing 6204-2RS", WeightKg: 0.11, DefaultSupplierCode: "SUP-ROULER", CreatedAt: now},
		{ID: node.Generate(), Code: "ART-V220", Name: "Ball valve DN20", WeightKg: 0.8, DefaultSupplierCode: "SUP-VANNEX", CreatedAt: now},
		{ID: node.Generate(), Code: "ART-M8X40", Name: "Hex bolt M8x40 A2 (100 pcs)", WeightKg: 2.3, DefaultSupplierCode: "SUP-ROULER", CreatedAt: now},
	}
	return tx.Create(&products).Error
}

func seedSuppliers(tx *gorm.DB, node *snowflake.Node) error {
	empty, err := tableEmpty(tx, &quotedomain.Supplier{})
	if err != nil || !empty {
		return err
	}
	now := time.Now().UTC()
	suppliers := []quotedomain.Supplier{
		{ID: node.Generate(), Code: "SUP-ROULER", Name: "Rouler SARL", Currency: "EUR", DiscountPercent: 8, CreatedAt: now},
		{ID: node.Generate(), Code: "SUP-VANNEX", Name: "Vannex BV", Currency: "EUR", DiscountPercent: 12, CreatedAt: now},
	}
	return tx.Create(&suppliers).Error
}

func seedTransportOptions(tx *gorm.DB, node *snowflake.Node) error {
	empty, err := tableEmpty(tx, &quotedomain.TransportOption{})
	if err != nil || !empty {
		return err
	}
	now := time.Now().UTC()
	options := []quotedomain.TransportOption{
		{ID: node.Generate(), Carrier: "ColisRapide", Country: "FR", BaseCost: 18, CostPerKg: 0.9, MaxWeightKg: 150, DeliveryDays: 2, CreatedAt: now},
		{ID: node.Generate(), Carrier: "FretSud", Country: "FR", BaseCost: 12, CostPerKg: 1.8, MaxWeightKg: 800, DeliveryDays: 4, CreatedAt: now},
		{ID: node.Generate(), Carrier: "MittelFracht", Country: "DE", BaseCost: 22, CostPerKg: 1.1, MaxWeightKg: 500, DeliveryDays: 3, CreatedAt: now},
		{ID: node.Generate(), Carrier: "EireExpress", Country: "IE", BaseCost: 35, CostPerKg: 2.4, MaxWeightKg: 200, DeliveryDays: 5, CreatedAt: now},
	}
	return tx.Create(&options).Error
}

func seedExchangeRates(tx *gorm.DB, node *snowflake.Node) error {
	empty, err := tableEmpty(tx, &quotedomain.ExchangeRate{})
	if err != nil || !empty {
		return err
	}
	now := time.Now().UTC()
	rates := []quotedomain.ExchangeRate{
		{ID: node.Generate(), FromCurrency: "EUR", ToCurrency: "USD", Rate: 1.09, EffectiveAt: now, CreatedAt: now},
		{ID: node.Generate(), FromCurrency: "USD", ToCurrency: "EUR", Rate: 0.92, EffectiveAt: now, CreatedAt: now},
		{ID: node.Generate(), FromCurrency: "EUR", ToCurrency: "GBP", Rate: 0.85, EffectiveAt: now, CreatedAt: now},
	}
	return tx.Create(&rates).Error
}

func seedSupplierCosts(tx *gorm.DB, node *snowflake.Node) error {
	empty, err := tableEmpty(tx, &suppliercostdomain.SupplierCost{})
	if err != nil || !empty {
		return err
	}
	now := time.Now().UTC()
	costs := []suppliercostdomain.SupplierCost{
		{ID: node.Generate(), ArticleCode: "ART-6204", SupplierCode: "SUP-ROULER", UnitCost: 1.85, Currency: "EUR", ObservedAt: now.AddDate(0, 0, -3)},
		{ID: node.Generate(), ArticleCode: "ART-V220", SupplierCode: "SUP-VANNEX", UnitCost: 14.2, Currency: "EUR", ObservedAt: now.AddDate(0, 0, -5)},
		{ID: node.Generate(), ArticleCode: "ART-M8X40", SupplierCode: "SUP-ROULER", UnitCost: 6.4, Currency: "EUR", ObservedAt: now.AddDate(0, 0, -7)},
	}
	return tx.Create(&costs).Error
}

// seedLedger writes enough sales and purchase history to exercise every
// branch of the decision tree: a prior sale to CL-ALDORA, sales to other
// customers for the weighted-average case, and purchases to compare costs
// against.
func seedLedger(tx *gorm.DB, node *snowflake.Node) error {
	empty, err := tableEmpty(tx, &ledgerdomain.SalesInvoiceLine{})
	if err != nil || !empty {
		return err
	}
	now := time.Now().UTC()
	sales := []ledgerdomain.SalesInvoiceLine{
		{ID: node.Generate(), DocumentNumber: "INV-24-0117", CustomerCode: "CL-ALDORA", CustomerName: "Aldora SA", ArticleCode: "ART-6204", Quantity: 200, UnitPrice: 2.75, Currency: "EUR", DocumentDate: now.AddDate(0, 0, -45)},
		{ID: node.Generate(), DocumentNumber: "INV-24-0098", CustomerCode: "CL-BRAVIA", CustomerName: "Bravia GmbH", ArticleCode: "ART-V220", Quantity: 30, UnitPrice: 21.5, Currency: "EUR", DocumentDate: now.AddDate(0, 0, -60)},
		{ID: node.Generate(), DocumentNumber: "INV-24-0073", CustomerCode: "CL-CORMAC", CustomerName: "Cormac Ltd", ArticleCode: "ART-V220", Quantity: 12, UnitPrice: 22.4, Currency: "EUR", DocumentDate: now.AddDate(0, 0, -120)},
		{ID: node.Generate(), DocumentNumber: "INV-23-0412", CustomerCode: "CL-BRAVIA", CustomerName: "Bravia GmbH", ArticleCode: "ART-V220", Quantity: 50, UnitPrice: 20.9, Currency: "EUR", DocumentDate: now.AddDate(0, 0, -200)},
	}
	if err := tx.Create(&sales).Error; err != nil {
		return err
	}

	purchases := []ledgerdomain.PurchaseInvoiceLine{
		{ID: node.Generate(), DocumentNumber: "PUR-24-0310", SupplierCode: "SUP-ROULER", ArticleCode: "ART-6204", Quantity: 1000, UnitPrice: 1.82, Currency: "EUR", DocumentDate: now.AddDate(0, 0, -40)},
		{ID: node.Generate(), DocumentNumber: "PUR-24-0255", SupplierCode: "SUP-VANNEX", ArticleCode: "ART-V220", Quantity: 100, UnitPrice: 13.1, Currency: "EUR", DocumentDate: now.AddDate(0, 0, -70)},
	}
	return tx.Create(&purchases).Error
}
