package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/quotabl/quotabl/internal/clock"
	"github.com/quotabl/quotabl/internal/config"
	historyservice "github.com/quotabl/quotabl/internal/history/service"
	ledgerdomain "github.com/quotabl/quotabl/internal/ledger/domain"
	ledgerrepository "github.com/quotabl/quotabl/internal/ledger/repository"
	notificationdomain "github.com/quotabl/quotabl/internal/notification/domain"
	notificationrepository "github.com/quotabl/quotabl/internal/notification/repository"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
	pricingrepository "github.com/quotabl/quotabl/internal/pricing/repository"
	suppliercostdomain "github.com/quotabl/quotabl/internal/suppliercost/domain"
	suppliercostrepository "github.com/quotabl/quotabl/internal/suppliercost/repository"
	validationdomain "github.com/quotabl/quotabl/internal/validation/domain"
	validationrepository "github.com/quotabl/quotabl/internal/validation/repository"
	validationservice "github.com/quotabl/quotabl/internal/validation/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recommenderStub struct {
	rec *suppliercostdomain.Recommendation
	err error
}

func (r *recommenderStub) Recommend(ctx context.Context, article, customer string) (*suppliercostdomain.Recommendation, error) {
	return r.rec, r.err
}

type pricingStack struct {
	svc     pricingdomain.Service
	db      *gorm.DB
	clock   *clock.FakeClock
	node    *snowflake.Node
	valRepo validationdomain.Repository
}

func setupPricingStack(t *testing.T, recommender suppliercostdomain.Recommender) *pricingStack {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.SalesInvoiceLine{},
		&ledgerdomain.PurchaseInvoiceLine{},
		&suppliercostdomain.SupplierCost{},
		&pricingdomain.PricingDecision{},
		&pricingdomain.DecisionRevision{},
		&validationdomain.ValidationRequest{},
		&validationdomain.ValidationDecision{},
		&notificationdomain.OutboxEntry{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	policy := config.NewStaticPricingPolicyHolder(config.DefaultPricingPolicy())

	history := historyservice.New(historyservice.Params{
		Log:            log,
		Clock:          clk,
		SalesLedger:    ledgerrepository.ProvideSalesLedger(db),
		PurchaseLedger: ledgerrepository.ProvidePurchaseLedger(db),
	})
	pricingRepo := pricingrepository.Provide()
	valRepo := validationrepository.Provide()
	sink := notificationrepository.NewOutboxSink(notificationrepository.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
	})
	validation := validationservice.New(validationservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Policy:      policy,
		Repo:        valRepo,
		PricingRepo: pricingRepo,
		Sink:        sink,
	})
	svc := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Policy:      policy,
		Repo:        pricingRepo,
		History:     history,
		CostSource:  suppliercostrepository.ProvideCostSource(db),
		Recommender: recommender,
		Validation:  validation,
	})
	return &pricingStack{svc: svc, db: db, clock: clk, node: node, valRepo: valRepo}
}

func (s *pricingStack) seedSale(t *testing.T, customer, article string, price, qty float64, daysAgo int) {
	t.Helper()
	require.NoError(t, s.db.Create(&ledgerdomain.SalesInvoiceLine{
		ID:             s.node.Generate(),
		DocumentNumber: fmt.Sprintf("INV-%d", s.node.Generate()),
		CustomerCode:   customer,
		ArticleCode:    article,
		Quantity:       qty,
		UnitPrice:      price,
		Currency:       "EUR",
		DocumentDate:   s.clock.Now().AddDate(0, 0, -daysAgo),
	}).Error)
}

func (s *pricingStack) seedPurchase(t *testing.T, article string, cost float64, daysAgo int) {
	t.Helper()
	require.NoError(t, s.db.Create(&ledgerdomain.PurchaseInvoiceLine{
		ID:             s.node.Generate(),
		DocumentNumber: fmt.Sprintf("PUR-%d", s.node.Generate()),
		SupplierCode:   "SUP-1",
		ArticleCode:    article,
		Quantity:       1,
		UnitPrice:      cost,
		Currency:       "EUR",
		DocumentDate:   s.clock.Now().AddDate(0, 0, -daysAgo),
	}).Error)
}

func (s *pricingStack) seedCost(t *testing.T, article string, cost float64) {
	t.Helper()
	require.NoError(t, s.db.Create(&suppliercostdomain.SupplierCost{
		ID:           s.node.Generate(),
		ArticleCode:  article,
		SupplierCode: "SUP-1",
		UnitCost:     cost,
		Currency:     "EUR",
		ObservedAt:   s.clock.Now().AddDate(0, 0, -1),
	}).Error)
}

func (s *pricingStack) decisionCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(&pricingdomain.PricingDecision{}).Count(&n).Error)
	return n
}

func (s *pricingStack) validationRequests(t *testing.T) []validationdomain.ValidationRequest {
	t.Helper()
	var requests []validationdomain.ValidationRequest
	require.NoError(t, s.db.Find(&requests).Error)
	return requests
}

func TestCalculatePriceStableHistoryReusesPrice(t *testing.T) {
	s := setupPricingStack(t, nil)
	s.seedSale(t, "CUST-1", "ART-1", 100, 5, 30)
	s.seedPurchase(t, "ART-1", 60, 60)
	s.seedCost(t, "ART-1", 61)

	decision, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{
		ArticleCode:  "ART-1",
		CustomerCode: "CUST-1",
		Quantity:     5,
	})
	require.NoError(t, err)

	assert.Equal(t, pricingdomain.CaseStableHistory, decision.PriceCase)
	assert.Equal(t, 100.0, decision.UnitPrice)
	assert.Equal(t, 500.0, decision.LineTotal)
	assert.False(t, decision.RequiresValidation)
	require.NotNil(t, decision.VariationPercent)
	assert.InDelta(t, 1.67, *decision.VariationPercent, 0.001)
	require.NotNil(t, decision.CostStable)
	assert.True(t, *decision.CostStable)
	require.NotNil(t, decision.LastSalePrice)
	assert.Equal(t, 100.0, *decision.LastSalePrice)

	// Margin way above the ceiling: an alert, never a flag.
	assert.NotEmpty(t, decision.Alerts)
	assert.Empty(t, s.validationRequests(t))
}

func TestCalculatePriceMarginBelowFloorRecomputes(t *testing.T) {
	s := setupPricingStack(t, nil)
	s.seedSale(t, "CUST-1", "ART-1", 100, 5, 30)
	s.seedPurchase(t, "ART-1", 88, 60)
	s.seedCost(t, "ART-1", 90)

	decision, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{
		ArticleCode:  "ART-1",
		CustomerCode: "CUST-1",
		Quantity:     2,
	})
	require.NoError(t, err)

	assert.Equal(t, pricingdomain.CaseStableHistory, decision.PriceCase)
	// 90 * 1.35, recomputed at the floor margin.
	assert.Equal(t, 121.5, decision.UnitPrice)
	assert.True(t, decision.RequiresValidation)
	assert.Equal(t, "margin below floor", decision.ValidationReason)

	requests := s.validationRequests(t)
	require.Len(t, requests, 1)
	assert.Equal(t, validationdomain.PriorityLow, requests[0].Priority)
	assert.Equal(t, decision.ID, requests[0].DecisionID)
}

func TestCalculatePriceUnstableCostRecomputes(t *testing.T) {
	s := setupPricingStack(t, nil)
	s.seedSale(t, "CUST-1", "ART-1", 80, 5, 30)
	s.seedPurchase(t, "ART-1", 50, 60)
	s.seedCost(t, "ART-1", 60)

	decision, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{
		ArticleCode:  "ART-1",
		CustomerCode: "CUST-1",
		Quantity:     1,
	})
	require.NoError(t, err)

	assert.Equal(t, pricingdomain.CaseModifiedHistory, decision.PriceCase)
	// 60 * 1.45 at the default margin.
	assert.Equal(t, 87.0, decision.UnitPrice)
	assert.True(t, decision.RequiresValidation)
	require.NotNil(t, decision.VariationPercent)
	assert.Equal(t, 20.0, *decision.VariationPercent)
	assert.Contains(t, decision.Justification, "80.00")
	assert.Contains(t, decision.Justification, "87.00")

	requests := s.validationRequests(t)
	require.Len(t, requests, 1)
	assert.Equal(t, validationdomain.PriorityUrgent, requests[0].Priority)
}

func TestCalculatePriceWeightedAverageFromOthers(t *testing.T) {
	s := setupPricingStack(t, nil)
	s.seedCost(t, "ART-1", 50)
	s.seedSale(t, "OTHER-1", "ART-1", 100, 10, 36)
	s.seedSale(t, "OTHER-2", "ART-1", 120, 5, 180)
	s.seedSale(t, "OTHER-3", "ART-1", 80, 20, 360)

	decision, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{
		ArticleCode:  "ART-1",
		CustomerCode: "CUST-1",
		Quantity:     3,
	})
	require.NoError(t, err)

	assert.Equal(t, pricingdomain.CaseOthersHistory, decision.PriceCase)
	// (100*0.95 + 120*0.5 + 80*0.5) / (0.95+0.5+0.5) = 100
	assert.Equal(t, 100.0, decision.UnitPrice)
	assert.Equal(t, 0.85, decision.Confidence)
	assert.Equal(t, 3, decision.ReferenceSales)
	assert.False(t, decision.RequiresValidation)
	assert.Empty(t, s.validationRequests(t))
}

func TestCalculatePriceFewReferencesZeroConfidence(t *testing.T) {
	s := setupPricingStack(t, nil)
	s.seedCost(t, "ART-1", 50)
	s.seedSale(t, "OTHER-1", "ART-1", 100, 10, 30)
	s.seedSale(t, "OTHER-2", "ART-1", 110, 10, 60)

	decision, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{
		ArticleCode:  "ART-1",
		CustomerCode: "CUST-1",
		Quantity:     1,
	})
	require.NoError(t, err)

	assert.Equal(t, pricingdomain.CaseOthersHistory, decision.PriceCase)
	assert.Equal(t, 0.0, decision.Confidence)
	assert.Equal(t, 2, decision.ReferenceSales)
	assert.NotEmpty(t, decision.Alerts)
}

func TestCalculatePriceNewProduct(t *testing.T) {
	s := setupPricingStack(t, nil)
	s.seedCost(t, "ART-NEW", 40)

	decision, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{
		ArticleCode:  "ART-NEW",
		CustomerCode: "CUST-1",
		Quantity:     10,
	})
	require.NoError(t, err)

	assert.Equal(t, pricingdomain.CaseNewProduct, decision.PriceCase)
	assert.Equal(t, 58.0, decision.UnitPrice)
	assert.Equal(t, 0.7, decision.Confidence)
	assert.True(t, decision.RequiresValidation)
	assert.Contains(t, decision.Justification, "No sale history")

	requests := s.validationRequests(t)
	require.Len(t, requests, 1)
	assert.Equal(t, validationdomain.PriorityMedium, requests[0].Priority)
}

func TestCalculatePricePriceUnavailable(t *testing.T) {
	s := setupPricingStack(t, nil)

	_, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{
		ArticleCode:  "ART-GHOST",
		CustomerCode: "CUST-1",
		Quantity:     1,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrPriceUnavailable)
	assert.Equal(t, int64(0), s.decisionCount(t))
}

func TestCalculatePriceInvalidContext(t *testing.T) {
	s := setupPricingStack(t, nil)

	cases := []pricingdomain.PricingContext{
		{CustomerCode: "CUST-1", Quantity: 1},
		{ArticleCode: "ART-1", Quantity: 1},
		{ArticleCode: "ART-1", CustomerCode: "CUST-1"},
		{ArticleCode: "ART-1", CustomerCode: "CUST-1", Quantity: -2},
	}
	for _, pctx := range cases {
		_, err := s.svc.CalculatePrice(context.Background(), pctx)
		assert.ErrorIs(t, err, pricingdomain.ErrInvalidContext)
	}
}

func TestCalculatePriceRecommenderWins(t *testing.T) {
	s := setupPricingStack(t, &recommenderStub{
		rec: &suppliercostdomain.Recommendation{UnitPrice: 123.456, Currency: "EUR", Justification: "negotiated rate"},
	})

	decision, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{
		ArticleCode:  "ART-1",
		CustomerCode: "CUST-1",
		Quantity:     2,
	})
	require.NoError(t, err)

	assert.Equal(t, pricingdomain.CaseSAPFunction, decision.PriceCase)
	assert.Equal(t, 123.46, decision.UnitPrice)
	assert.Equal(t, 1.0, decision.Confidence)
	assert.False(t, decision.RequiresValidation)
	assert.Contains(t, decision.Justification, "negotiated rate")
}

func TestCalculatePriceRecommenderFailureFallsThrough(t *testing.T) {
	s := setupPricingStack(t, &recommenderStub{err: errors.New("function offline")})
	s.seedCost(t, "ART-1", 40)

	decision, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{
		ArticleCode:  "ART-1",
		CustomerCode: "CUST-1",
		Quantity:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, pricingdomain.CaseNewProduct, decision.PriceCase)
}

func TestCalculatePriceCacheAndForceRecalculate(t *testing.T) {
	s := setupPricingStack(t, nil)
	s.seedCost(t, "ART-1", 40)

	pctx := pricingdomain.PricingContext{ArticleCode: "ART-1", CustomerCode: "CUST-2", Quantity: 1}

	first, err := s.svc.CalculatePrice(context.Background(), pctx)
	require.NoError(t, err)
	second, err := s.svc.CalculatePrice(context.Background(), pctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), s.decisionCount(t))

	pctx.ForceRecalculate = true
	third, err := s.svc.CalculatePrice(context.Background(), pctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, int64(2), s.decisionCount(t))

	pctx.ForceRecalculate = false
	s.clock.Advance(6 * time.Minute)
	fourth, err := s.svc.CalculatePrice(context.Background(), pctx)
	require.NoError(t, err)
	assert.NotEqual(t, third.ID, fourth.ID)
	assert.Equal(t, int64(3), s.decisionCount(t))
}

func TestManualOverride(t *testing.T) {
	s := setupPricingStack(t, nil)
	s.seedCost(t, "ART-1", 40)

	decision, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{
		ArticleCode:  "ART-1",
		CustomerCode: "CUST-1",
		Quantity:     4,
	})
	require.NoError(t, err)
	createdAt := decision.CreatedAt

	s.clock.Advance(time.Hour)
	overridden, err := s.svc.ManualOverride(context.Background(), decision.ID.String(), pricingdomain.OverrideRequest{
		UnitPrice:     65,
		MarginPercent: 62.5,
		Justification: "strategic account pricing",
		OverriddenBy:  "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, pricingdomain.CaseManual, overridden.PriceCase)
	assert.Equal(t, 65.0, overridden.UnitPrice)
	assert.Equal(t, 260.0, overridden.LineTotal)

	stored, err := s.svc.GetDecision(context.Background(), decision.ID.String())
	require.NoError(t, err)
	assert.Equal(t, pricingdomain.CaseManual, stored.PriceCase)
	assert.Equal(t, 65.0, stored.UnitPrice)
	assert.Equal(t, createdAt.Unix(), stored.CreatedAt.Unix())

	var revisions []pricingdomain.DecisionRevision
	require.NoError(t, s.db.Where("decision_id = ?", decision.ID).Find(&revisions).Error)
	require.Len(t, revisions, 1)
	assert.Equal(t, 58.0, revisions[0].PriceBefore)
	assert.Equal(t, 65.0, revisions[0].PriceAfter)
	assert.Equal(t, "alice", revisions[0].OverriddenBy)
}

func TestManualOverrideValidation(t *testing.T) {
	s := setupPricingStack(t, nil)

	_, err := s.svc.ManualOverride(context.Background(), s.node.Generate().String(), pricingdomain.OverrideRequest{
		UnitPrice:     0,
		Justification: "x",
		OverriddenBy:  "alice",
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidOverride)

	_, err = s.svc.ManualOverride(context.Background(), s.node.Generate().String(), pricingdomain.OverrideRequest{
		UnitPrice:     10,
		Justification: "adjustment",
		OverriddenBy:  "alice",
	})
	assert.ErrorIs(t, err, pricingdomain.ErrNotFound)
}

func TestStatisticsAggregatesByCase(t *testing.T) {
	s := setupPricingStack(t, nil)
	s.seedCost(t, "ART-1", 40)
	s.seedCost(t, "ART-2", 40)

	_, err := s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{ArticleCode: "ART-1", CustomerCode: "CUST-1", Quantity: 1})
	require.NoError(t, err)
	_, err = s.svc.CalculatePrice(context.Background(), pricingdomain.PricingContext{ArticleCode: "ART-2", CustomerCode: "CUST-1", Quantity: 1})
	require.NoError(t, err)

	stats, err := s.svc.Statistics(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalDecisions)
	assert.Equal(t, int64(2), stats.ByCase[pricingdomain.CaseNewProduct])
	assert.Equal(t, int64(2), stats.FlaggedDecision)
	assert.Equal(t, 1.0, stats.ValidationRate)
	assert.Equal(t, 0.7, stats.MeanConfidence)
}
