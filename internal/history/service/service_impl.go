package service

import (
	"context"
	"math"

	"github.com/quotabl/quotabl/internal/clock"
	historydomain "github.com/quotabl/quotabl/internal/history/domain"
	ledgerdomain "github.com/quotabl/quotabl/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log            *zap.Logger
	Clock          clock.Clock
	SalesLedger    ledgerdomain.SalesLedger
	PurchaseLedger ledgerdomain.PurchaseLedger
}

type Service struct {
	log            *zap.Logger
	clock          clock.Clock
	salesLedger    ledgerdomain.SalesLedger
	purchaseLedger ledgerdomain.PurchaseLedger
}

func New(p Params) historydomain.Service {
	return &Service{
		log:            p.Log.Named("history.service"),
		clock:          p.Clock,
		salesLedger:    p.SalesLedger,
		purchaseLedger: p.PurchaseLedger,
	}
}

func (s *Service) LastSaleToCustomer(ctx context.Context, article, customer string, lookbackDays int) (*historydomain.SaleRecord, error) {
	if lookbackDays <= 0 {
		lookbackDays = historydomain.DefaultSalesLookbackDays
	}

	lines, err := s.salesLedger.QueryInvoiceLines(ctx, ledgerdomain.LineQuery{
		Article:  article,
		Customer: &customer,
		DateFrom: s.clock.Now().AddDate(0, 0, -lookbackDays),
		Limit:    1,
	})
	if err != nil {
		s.log.Warn("sales ledger query failed, treating as no history",
			zap.String("article", article),
			zap.String("customer", customer),
			zap.Error(err),
		)
		return nil, nil
	}
	if len(lines) == 0 {
		return nil, nil
	}

	line := lines[0]
	return &historydomain.SaleRecord{
		CustomerCode:   line.CustomerCode,
		CustomerName:   line.CustomerName,
		ArticleCode:    line.ArticleCode,
		Quantity:       line.Quantity,
		UnitPrice:      line.UnitPrice,
		Currency:       line.Currency,
		DocumentNumber: line.DocumentNumber,
		SaleDate:       line.DocumentDate,
	}, nil
}

func (s *Service) SalesToOtherCustomers(ctx context.Context, article, excludeCustomer string, lookbackDays, limit int) ([]historydomain.WeightedSale, error) {
	if lookbackDays <= 0 {
		lookbackDays = historydomain.DefaultSalesLookbackDays
	}
	if limit <= 0 {
		limit = historydomain.DefaultOtherSalesLimit
	}

	now := s.clock.Now()
	lines, err := s.salesLedger.QueryInvoiceLines(ctx, ledgerdomain.LineQuery{
		Article:         article,
		ExcludeCustomer: &excludeCustomer,
		DateFrom:        now.AddDate(0, 0, -lookbackDays),
		Limit:           limit,
	})
	if err != nil {
		s.log.Warn("sales ledger query failed, treating as no history",
			zap.String("article", article),
			zap.Error(err),
		)
		return nil, nil
	}

	sales := make([]historydomain.WeightedSale, 0, len(lines))
	for _, line := range lines {
		sales = append(sales, historydomain.WeightedSale{
			CustomerCode: line.CustomerCode,
			CustomerName: line.CustomerName,
			UnitPrice:    line.UnitPrice,
			Quantity:     line.Quantity,
			SaleDate:     line.DocumentDate,
			Weight:       historydomain.ComputeWeight(line.DocumentDate, line.Quantity, now),
		})
	}
	return sales, nil
}

// WeightedAveragePrice is sum-based and therefore order-independent. The
// second return is false when the input is empty or carries zero total weight.
func (s *Service) WeightedAveragePrice(sales []historydomain.WeightedSale) (float64, bool) {
	if len(sales) == 0 {
		return 0, false
	}

	var weightedSum, totalWeight float64
	for _, sale := range sales {
		weightedSum += sale.UnitPrice * sale.Weight
		totalWeight += sale.Weight
	}
	if totalWeight == 0 {
		return 0, false
	}
	return math.Round(weightedSum/totalWeight*100) / 100, true
}

func (s *Service) SupplierPriceVariation(ctx context.Context, article string, currentCost float64, lookbackDays int) (*historydomain.PriceVariation, error) {
	if lookbackDays <= 0 {
		lookbackDays = historydomain.DefaultPurchaseLookbackDays
	}

	lines, err := s.purchaseLedger.QueryInvoiceLines(ctx, ledgerdomain.LineQuery{
		Article:  article,
		DateFrom: s.clock.Now().AddDate(0, 0, -lookbackDays),
		Limit:    1,
	})
	if err != nil {
		s.log.Warn("purchase ledger query failed, treating as no history",
			zap.String("article", article),
			zap.Error(err),
		)
		return nil, nil
	}
	if len(lines) == 0 {
		return nil, nil
	}

	variation := historydomain.NewPriceVariation(lines[0].UnitPrice, currentCost, lines[0].DocumentDate)
	return &variation, nil
}
