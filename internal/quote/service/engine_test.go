package service

import (
	"context"
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
	pricingservice "github.com/quotabl/quotabl/internal/pricing/service"
	"github.com/quotabl/quotabl/internal/quote/domain"
	quoterepository "github.com/quotabl/quotabl/internal/quote/repository"
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

type stubRenderer struct {
	err error
}

func (r stubRenderer) Render(draft *domain.QuoteDraft) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-stub " + draft.QuoteNumber), nil
}

type engineStack struct {
	engine domain.Engine
	db     *gorm.DB
	clock  *clock.FakeClock
	node   *snowflake.Node
}

func setupEngineStack(t *testing.T) *engineStack {
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
		&domain.Client{},
		&domain.Product{},
		&domain.Supplier{},
		&domain.ExchangeRate{},
		&domain.TransportOption{},
		&domain.DraftRecord{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	policy := config.NewStaticPricingPolicyHolder(config.DefaultPricingPolicy())

	pricingRepo := pricingrepository.Provide()
	validation := validationservice.New(validationservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Policy:      policy,
		Repo:        validationrepository.Provide(),
		PricingRepo: pricingRepo,
		Sink: notificationrepository.NewOutboxSink(notificationrepository.Params{
			DB:    db,
			Log:   log,
			GenID: node,
			Clock: clk,
		}),
	})
	pricing := pricingservice.New(pricingservice.Params{
		DB:     db,
		Log:    log,
		GenID:  node,
		Clock:  clk,
		Policy: policy,
		Repo:   pricingRepo,
		History: historyservice.New(historyservice.Params{
			Log:            log,
			Clock:          clk,
			SalesLedger:    ledgerrepository.ProvideSalesLedger(db),
			PurchaseLedger: ledgerrepository.ProvidePurchaseLedger(db),
		}),
		CostSource: suppliercostrepository.ProvideCostSource(db),
		Validation: validation,
	})
	engine := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Policy:    policy,
		Pricing:   pricing,
		Clients:   quoterepository.NewClientDirectory(db, node),
		Products:  quoterepository.NewProductCatalog(db),
		Suppliers: quoterepository.NewSupplierDirectory(db),
		Rates:     quoterepository.NewRateSource(db),
		Transport: quoterepository.NewTransportRater(db),
		Renderer:  stubRenderer{},
		Drafts:    quoterepository.NewDraftStore(),
	})
	return &engineStack{engine: engine, db: db, clock: clk, node: node}
}

// seedBaseline sets up a known client in France, one article with a stable
// cost and a prior sale, and two carriers serving FR.
func (s *engineStack) seedBaseline(t *testing.T) {
	t.Helper()
	now := s.clock.Now()
	require.NoError(t, s.db.Create(&domain.Client{
		ID: s.node.Generate(), Code: "CUST-1", Name: "Aldora SA", Country: "FR", CreatedAt: now,
	}).Error)
	require.NoError(t, s.db.Create(&domain.Product{
		ID: s.node.Generate(), Code: "ART-1", Name: "Bearing 6204", WeightKg: 2, DefaultSupplierCode: "SUP-1", CreatedAt: now,
	}).Error)
	require.NoError(t, s.db.Create(&domain.Supplier{
		ID: s.node.Generate(), Code: "SUP-1", Name: "Rouler SARL", Currency: "EUR", DiscountPercent: 10, CreatedAt: now,
	}).Error)
	require.NoError(t, s.db.Create(&suppliercostdomain.SupplierCost{
		ID: s.node.Generate(), ArticleCode: "ART-1", SupplierCode: "SUP-1", UnitCost: 70, Currency: "EUR", ObservedAt: now.AddDate(0, 0, -1),
	}).Error)
	require.NoError(t, s.db.Create(&ledgerdomain.SalesInvoiceLine{
		ID: s.node.Generate(), DocumentNumber: "INV-1001", CustomerCode: "CUST-1", ArticleCode: "ART-1",
		Quantity: 5, UnitPrice: 100, Currency: "EUR", DocumentDate: now.AddDate(0, 0, -30),
	}).Error)
	require.NoError(t, s.db.Create(&ledgerdomain.PurchaseInvoiceLine{
		ID: s.node.Generate(), DocumentNumber: "PUR-2001", SupplierCode: "SUP-1", ArticleCode: "ART-1",
		Quantity: 20, UnitPrice: 69, Currency: "EUR", DocumentDate: now.AddDate(0, 0, -60),
	}).Error)
	require.NoError(t, s.db.Create(&domain.TransportOption{
		ID: s.node.Generate(), Carrier: "ColisRapide", Country: "FR", BaseCost: 20, CostPerKg: 1, MaxWeightKg: 100, DeliveryDays: 2, CreatedAt: now,
	}).Error)
	require.NoError(t, s.db.Create(&domain.TransportOption{
		ID: s.node.Generate(), Carrier: "FretSud", Country: "FR", BaseCost: 15, CostPerKg: 2.5, MaxWeightKg: 200, DeliveryDays: 4, CreatedAt: now,
	}).Error)
}

func traceStates(draft *domain.QuoteDraft) []domain.WorkflowState {
	states := make([]domain.WorkflowState, 0, len(draft.Trace))
	for _, entry := range draft.Trace {
		states = append(states, entry.State)
	}
	return states
}

func TestRunHappyPathQuoteSent(t *testing.T) {
	s := setupEngineStack(t)
	s.seedBaseline(t)

	draft, err := s.engine.Run(context.Background(), domain.QuoteRequest{
		CustomerCode: "CUST-1",
		Lines:        []domain.QuoteLine{{ArticleCode: "ART-1", Quantity: 5}},
		RequestedBy:  "sales@quotabl.test",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateQuoteSent, draft.State)
	assert.Equal(t, []domain.WorkflowState{
		domain.StateReceived,
		domain.StateClientIdentified,
		domain.StateProductIdentified,
		domain.StateSupplierIdentified,
		domain.StateSupplierPriced,
		domain.StateHistoricalDone,
		domain.StateCaseSelected,
		domain.StatePricingDone,
		domain.StateCurrencyApplied,
		domain.StateDiscountApplied,
		domain.StateMarginApplied,
		domain.StateTransportOptimized,
		domain.StateJustificationBuilt,
		domain.StateCoherenceValidated,
		domain.StateQuoteGenerated,
		domain.StateQuoteSent,
	}, traceStates(draft))

	require.Len(t, draft.Lines, 1)
	line := draft.Lines[0]
	assert.Equal(t, string(pricingdomain.CaseStableHistory), line.PriceCase)
	assert.Equal(t, 100.0, line.UnitPrice)
	assert.Equal(t, 70.0, line.SupplierCost)
	// Net of the 10% supplier discount.
	assert.Equal(t, 63.0, line.NetCost)
	assert.Equal(t, 500.0, line.LineTotal)
	assert.False(t, line.RequiresValidation)
	assert.NotEmpty(t, line.DecisionID)

	assert.Equal(t, 500.0, draft.Subtotal)
	assert.Equal(t, "ColisRapide", draft.TransportCarrier)
	// 10 kg shipment: 20 base + 1/kg beats 15 base + 2.50/kg.
	assert.Equal(t, 30.0, draft.TransportCost)
	assert.Equal(t, 2, draft.TransportDays)
	assert.Equal(t, 530.0, draft.Total)
	assert.Equal(t, "Q-20260310-"+draft.ID.String(), draft.QuoteNumber)
	assert.NotEmpty(t, draft.Document)
	assert.Contains(t, draft.Justification, "ART-1:")
	assert.Contains(t, draft.Justification, "Transport via ColisRapide")

	stored, err := s.engine.Get(context.Background(), draft.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StateQuoteSent, stored.State)
	assert.Equal(t, draft.Total, stored.Total)
	assert.Equal(t, "ColisRapide", stored.TransportCarrier)
	assert.Len(t, stored.Trace, len(draft.Trace))

	document, err := s.engine.Document(context.Background(), draft.ID.String())
	require.NoError(t, err)
	assert.Contains(t, string(document), draft.QuoteNumber)
}

func TestRunFlaggedLineHoldsForValidation(t *testing.T) {
	s := setupEngineStack(t)
	s.seedBaseline(t)
	require.NoError(t, s.db.Create(&domain.Product{
		ID: s.node.Generate(), Code: "ART-NEW", Name: "Gasket X", WeightKg: 0.5, DefaultSupplierCode: "SUP-1", CreatedAt: s.clock.Now(),
	}).Error)
	require.NoError(t, s.db.Create(&suppliercostdomain.SupplierCost{
		ID: s.node.Generate(), ArticleCode: "ART-NEW", SupplierCode: "SUP-1", UnitCost: 12, Currency: "EUR", ObservedAt: s.clock.Now().AddDate(0, 0, -1),
	}).Error)

	draft, err := s.engine.Run(context.Background(), domain.QuoteRequest{
		CustomerCode: "CUST-1",
		Lines: []domain.QuoteLine{
			{ArticleCode: "ART-1", Quantity: 2},
			{ArticleCode: "ART-NEW", Quantity: 4},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateManualValidation, draft.State)
	last := draft.Trace[len(draft.Trace)-1]
	assert.Contains(t, last.Decision, "ART-NEW")
	assert.NotContains(t, last.Decision, "ART-1,")

	// The quote is still generated, only held back.
	assert.NotEmpty(t, draft.QuoteNumber)

	var pending int64
	require.NoError(t, s.db.Model(&validationdomain.ValidationRequest{}).
		Where("status = ?", validationdomain.StatusPending).Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}

func TestRunUnknownArticleEndsInError(t *testing.T) {
	s := setupEngineStack(t)
	s.seedBaseline(t)

	draft, err := s.engine.Run(context.Background(), domain.QuoteRequest{
		CustomerCode: "CUST-1",
		Lines:        []domain.QuoteLine{{ArticleCode: "ART-GHOST", Quantity: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateError, draft.State)
	last := draft.Trace[len(draft.Trace)-1]
	assert.Equal(t, "Workflow stopped at product resolution", last.Decision)
	assert.Contains(t, last.Justification, "ART-GHOST")

	stored, err := s.engine.Get(context.Background(), draft.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StateError, stored.State)
}

func TestRunUnknownClientGetsCreated(t *testing.T) {
	s := setupEngineStack(t)
	s.seedBaseline(t)

	draft, err := s.engine.Run(context.Background(), domain.QuoteRequest{
		CustomerCode: "CUST-NEW",
		CustomerName: "Nouveau Client",
		Lines:        []domain.QuoteLine{{ArticleCode: "ART-1", Quantity: 1}},
	})
	require.NoError(t, err)

	states := traceStates(draft)
	assert.Contains(t, states, domain.StateClientCreated)
	assert.NotContains(t, states, domain.StateClientIdentified)

	var client domain.Client
	require.NoError(t, s.db.First(&client, "code = ?", "CUST-NEW").Error)
	assert.Equal(t, "Nouveau Client", client.Name)

	// No country on the fresh client: transport is skipped, not fatal.
	assert.Equal(t, draft.Subtotal, draft.Total)
	assert.Empty(t, draft.TransportCarrier)
	for _, entry := range draft.Trace {
		if entry.State == domain.StateTransportOptimized {
			assert.Contains(t, entry.Alerts, "transport not included in the total")
		}
	}
}

func TestRunPriceUnavailablePropagates(t *testing.T) {
	s := setupEngineStack(t)
	s.seedBaseline(t)
	require.NoError(t, s.db.Create(&domain.Product{
		ID: s.node.Generate(), Code: "ART-VOID", Name: "Void", WeightKg: 1, DefaultSupplierCode: "SUP-1", CreatedAt: s.clock.Now(),
	}).Error)

	draft, err := s.engine.Run(context.Background(), domain.QuoteRequest{
		CustomerCode: "CUST-1",
		Lines:        []domain.QuoteLine{{ArticleCode: "ART-VOID", Quantity: 1}},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrPriceUnavailable)
	assert.Nil(t, draft)

	// The aborted run is still on record.
	drafts, err := s.engine.List(context.Background(), domain.ListFilter{State: domain.StateError})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "CUST-1", drafts[0].ClientCode)
}

func TestRunConvertsCurrency(t *testing.T) {
	s := setupEngineStack(t)
	s.seedBaseline(t)
	require.NoError(t, s.db.Create(&domain.ExchangeRate{
		ID: s.node.Generate(), FromCurrency: "EUR", ToCurrency: "USD", Rate: 1.1,
		EffectiveAt: s.clock.Now().AddDate(0, 0, -1),
	}).Error)

	draft, err := s.engine.Run(context.Background(), domain.QuoteRequest{
		CustomerCode: "CUST-1",
		Currency:     "usd",
		Lines:        []domain.QuoteLine{{ArticleCode: "ART-1", Quantity: 5}},
	})
	require.NoError(t, err)

	assert.Equal(t, "USD", draft.Currency)
	require.Len(t, draft.Lines, 1)
	assert.Equal(t, 1.1, draft.Lines[0].ExchangeRate)
	assert.Equal(t, 110.0, draft.Lines[0].UnitPrice)
	assert.Equal(t, 77.0, draft.Lines[0].SupplierCost)
	assert.Equal(t, "USD", draft.Lines[0].Currency)
	assert.Equal(t, 550.0, draft.Subtotal)
	assert.Equal(t, 580.0, draft.Total)
}

func TestRunMissingRateEndsInError(t *testing.T) {
	s := setupEngineStack(t)
	s.seedBaseline(t)

	draft, err := s.engine.Run(context.Background(), domain.QuoteRequest{
		CustomerCode: "CUST-1",
		Currency:     "GBP",
		Lines:        []domain.QuoteLine{{ArticleCode: "ART-1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateError, draft.State)
	last := draft.Trace[len(draft.Trace)-1]
	assert.Equal(t, "Workflow stopped at currency conversion", last.Decision)
	assert.Contains(t, last.Justification, "EUR->GBP")
}

func TestRunInvalidRequest(t *testing.T) {
	s := setupEngineStack(t)

	bad := []domain.QuoteRequest{
		{},
		{CustomerCode: "CUST-1"},
		{CustomerCode: "CUST-1", Lines: []domain.QuoteLine{{ArticleCode: "", Quantity: 1}}},
		{CustomerCode: "CUST-1", Lines: []domain.QuoteLine{{ArticleCode: "ART-1", Quantity: 0}}},
	}
	for _, req := range bad {
		_, err := s.engine.Run(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	}
}

func TestGetAndDocumentErrors(t *testing.T) {
	s := setupEngineStack(t)

	_, err := s.engine.Get(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = s.engine.Get(context.Background(), s.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.engine.Document(context.Background(), s.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
