package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/quotabl/quotabl/internal/clock"
	"github.com/quotabl/quotabl/internal/config"
	obsmetrics "github.com/quotabl/quotabl/internal/observability/metrics"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
	"github.com/quotabl/quotabl/internal/quote/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    *config.PricingPolicyHolder
	Pricing   pricingdomain.Service
	Clients   domain.ClientDirectory
	Products  domain.ProductCatalog
	Suppliers domain.SupplierDirectory
	Rates     domain.RateSource
	Transport domain.TransportRater
	Renderer  domain.Renderer
	Drafts    domain.DraftStore
}

type Engine struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	policy    *config.PricingPolicyHolder
	pricing   pricingdomain.Service
	clients   domain.ClientDirectory
	products  domain.ProductCatalog
	suppliers domain.SupplierDirectory
	rates     domain.RateSource
	transport domain.TransportRater
	renderer  domain.Renderer
	drafts    domain.DraftStore
}

func New(p Params) domain.Engine {
	return &Engine{
		db:        p.DB,
		log:       p.Log.Named("quote.engine"),
		genID:     p.GenID,
		clock:     p.Clock,
		policy:    p.Policy,
		pricing:   p.Pricing,
		clients:   p.Clients,
		products:  p.Products,
		suppliers: p.Suppliers,
		rates:     p.Rates,
		transport: p.Transport,
		renderer:  p.Renderer,
		drafts:    p.Drafts,
	}
}

// Run drives the request through the workflow. Step failures terminate the
// draft in ERROR and still return it; only unresolvable-price and internal
// pricing faults propagate as errors.
func (e *Engine) Run(ctx context.Context, req domain.QuoteRequest) (*domain.QuoteDraft, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EUR"
	}
	draft := &domain.QuoteDraft{
		ID:          e.genID.Generate(),
		ClientCode:  req.CustomerCode,
		Currency:    currency,
		RequestedBy: req.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	draft.AppendTrace(domain.StateReceived, domain.TraceEntry{
		Decision:      fmt.Sprintf("Quote request received for %s with %d line(s)", req.CustomerCode, len(req.Lines)),
		Justification: "intake accepted",
		At:            now,
	})

	if err := e.resolveClient(ctx, draft, req); err != nil {
		return e.fail(ctx, draft, "client resolution", err)
	}
	if err := e.resolveProducts(ctx, draft, req); err != nil {
		return e.fail(ctx, draft, "product resolution", err)
	}
	if err := e.resolveSuppliers(ctx, draft, req); err != nil {
		return e.fail(ctx, draft, "supplier resolution", err)
	}

	decisions, err := e.priceLines(ctx, draft, req)
	if err != nil {
		if errors.Is(err, pricingdomain.ErrPriceUnavailable) || errors.Is(err, pricingdomain.ErrPricingFailed) {
			e.markError(ctx, draft, "pricing", err)
			return nil, err
		}
		return e.fail(ctx, draft, "pricing", err)
	}
	e.traceAnalysis(draft, decisions)

	if err := e.applyCurrency(ctx, draft); err != nil {
		return e.fail(ctx, draft, "currency conversion", err)
	}
	e.applyDiscount(draft)
	e.applyMargin(draft)
	if err := e.optimizeTransport(ctx, draft); err != nil {
		return e.fail(ctx, draft, "transport costing", err)
	}
	e.buildJustification(draft)
	if err := e.validateCoherence(draft); err != nil {
		return e.fail(ctx, draft, "coherence check", err)
	}
	if err := e.generateQuote(draft); err != nil {
		return e.fail(ctx, draft, "quote generation", err)
	}

	e.finish(draft)
	e.persist(ctx, draft)
	obsmetrics.Default().IncWorkflowRun(string(draft.State))
	e.log.Info("quote run finished",
		zap.String("quote_id", draft.ID.String()),
		zap.String("client", draft.ClientCode),
		zap.String("state", string(draft.State)),
		zap.Float64("total", draft.Total),
	)
	return draft, nil
}

func validateRequest(req domain.QuoteRequest) error {
	if strings.TrimSpace(req.CustomerCode) == "" || len(req.Lines) == 0 {
		return domain.ErrInvalidRequest
	}
	for _, line := range req.Lines {
		if strings.TrimSpace(line.ArticleCode) == "" || line.Quantity <= 0 {
			return domain.ErrInvalidRequest
		}
	}
	return nil
}

func (e *Engine) resolveClient(ctx context.Context, draft *domain.QuoteDraft, req domain.QuoteRequest) error {
	client, err := e.clients.FindByCode(ctx, req.CustomerCode)
	if err != nil {
		return err
	}
	if client != nil {
		draft.ClientName = client.Name
		draft.ClientCountry = client.Country
		draft.AppendTrace(domain.StateClientIdentified, domain.TraceEntry{
			Decision:      fmt.Sprintf("Client %s resolved as %q", client.Code, client.Name),
			Justification: "existing client record",
			DataSources:   []string{"clients"},
			At:            e.clock.Now(),
		})
		return nil
	}

	name := req.CustomerName
	if name == "" {
		name = req.CustomerCode
	}
	created := &domain.Client{Code: req.CustomerCode, Name: name, CreatedAt: e.clock.Now()}
	if err := e.clients.Create(ctx, created); err != nil {
		return err
	}
	draft.ClientName = created.Name
	draft.AppendTrace(domain.StateClientCreated, domain.TraceEntry{
		Decision:      fmt.Sprintf("Client %s not found, created as %q", created.Code, created.Name),
		Justification: "no existing client record",
		DataSources:   []string{"clients"},
		Alerts:        []string{"new client created during quoting"},
		At:            e.clock.Now(),
	})
	return nil
}

func (e *Engine) resolveProducts(ctx context.Context, draft *domain.QuoteDraft, req domain.QuoteRequest) error {
	names := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		product, err := e.products.FindByCode(ctx, line.ArticleCode)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("unknown article %s", line.ArticleCode)
		}
		state := domain.LinePriceState{
			ArticleCode:  product.Code,
			ProductName:  product.Name,
			Quantity:     line.Quantity,
			WeightKg:     product.WeightKg,
			SupplierCode: line.SupplierCode,
		}
		if state.SupplierCode == "" {
			state.SupplierCode = product.DefaultSupplierCode
		}
		draft.Lines = append(draft.Lines, state)
		names = append(names, product.Code)
	}
	draft.AppendTrace(domain.StateProductIdentified, domain.TraceEntry{
		Decision:      fmt.Sprintf("Resolved %d product(s): %s", len(names), strings.Join(names, ", ")),
		Justification: "all requested articles exist in the catalog",
		DataSources:   []string{"products"},
		At:            e.clock.Now(),
	})
	return nil
}

// resolveSuppliers binds each line to exactly one supplier. Split sourcing is
// not supported.
func (e *Engine) resolveSuppliers(ctx context.Context, draft *domain.QuoteDraft, req domain.QuoteRequest) error {
	assignments := make([]string, 0, len(draft.Lines))
	for i := range draft.Lines {
		line := &draft.Lines[i]
		if line.SupplierCode == "" {
			return fmt.Errorf("no supplier for article %s", line.ArticleCode)
		}
		supplier, err := e.suppliers.FindByCode(ctx, line.SupplierCode)
		if err != nil {
			return err
		}
		if supplier == nil {
			return fmt.Errorf("unknown supplier %s for article %s", line.SupplierCode, line.ArticleCode)
		}
		line.SupplierName = supplier.Name
		line.DiscountPercent = supplier.DiscountPercent
		assignments = append(assignments, fmt.Sprintf("%s<-%s", line.ArticleCode, supplier.Code))
	}
	draft.AppendTrace(domain.StateSupplierIdentified, domain.TraceEntry{
		Decision:      fmt.Sprintf("One supplier bound per line: %s", strings.Join(assignments, ", ")),
		Justification: "single-supplier sourcing per line",
		DataSources:   []string{"suppliers"},
		At:            e.clock.Now(),
	})
	return nil
}

func (e *Engine) priceLines(ctx context.Context, draft *domain.QuoteDraft, req domain.QuoteRequest) ([]*pricingdomain.PricingDecision, error) {
	decisions := make([]*pricingdomain.PricingDecision, 0, len(draft.Lines))
	for i := range draft.Lines {
		line := &draft.Lines[i]
		decision, err := e.pricing.CalculatePrice(ctx, pricingdomain.PricingContext{
			ArticleCode:     line.ArticleCode,
			CustomerCode:    draft.ClientCode,
			Quantity:        line.Quantity,
			SupplierCode:    line.SupplierCode,
			SupplierName:    line.SupplierName,
			MarginPercent:   req.MarginPercent,
			SourceMessageID: req.SourceMessageID,
			SourceSubject:   req.SourceSubject,
			RequestedBy:     req.RequestedBy,
		})
		if err != nil {
			return nil, err
		}
		if decision.SupplierCost != nil {
			line.SupplierCost = *decision.SupplierCost
		}
		line.UnitPrice = decision.UnitPrice
		line.Currency = decision.Currency
		line.MarginPercent = decision.MarginPercent
		line.PriceCase = string(decision.PriceCase)
		line.Justification = decision.Justification
		line.RequiresValidation = decision.RequiresValidation
		line.DecisionID = decision.ID.String()
		decisions = append(decisions, decision)
	}
	return decisions, nil
}

// traceAnalysis reconstructs the four pricing stages from the decisions so
// the trace mirrors what the pricing engine did, in order.
func (e *Engine) traceAnalysis(draft *domain.QuoteDraft, decisions []*pricingdomain.PricingDecision) {
	now := e.clock.Now()

	costs := make([]string, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		costs = append(costs, fmt.Sprintf("%s=%.2f", line.ArticleCode, line.SupplierCost))
	}
	draft.AppendTrace(domain.StateSupplierPriced, domain.TraceEntry{
		Decision:      fmt.Sprintf("Supplier costs resolved: %s", strings.Join(costs, ", ")),
		Justification: "latest recorded supplier cost per article",
		DataSources:   []string{"supplier_costs"},
		At:            now,
	})

	withHistory := 0
	references := 0
	for _, d := range decisions {
		if d.LastSaleDate != nil {
			withHistory++
		}
		references += d.ReferenceSales
	}
	draft.AppendTrace(domain.StateHistoricalDone, domain.TraceEntry{
		Decision: fmt.Sprintf("%d of %d line(s) have prior sales to this client; %d reference sale(s) to others",
			withHistory, len(decisions), references),
		Justification: "weighted sales history consulted per line",
		DataSources:   []string{"sales_invoice_lines", "purchase_invoice_lines"},
		At:            now,
	})

	cases := make([]string, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		cases = append(cases, fmt.Sprintf("%s:%s", line.ArticleCode, line.PriceCase))
	}
	draft.AppendTrace(domain.StateCaseSelected, domain.TraceEntry{
		Decision:      fmt.Sprintf("Pricing cases selected: %s", strings.Join(cases, ", ")),
		Justification: "decision tree evaluated per line",
		DataSources:   []string{"pricing_decisions"},
		At:            now,
	})

	flagged := 0
	for _, line := range draft.Lines {
		if line.RequiresValidation {
			flagged++
		}
	}
	entry := domain.TraceEntry{
		Decision:      fmt.Sprintf("All %d line(s) priced; %d flagged for commercial validation", len(draft.Lines), flagged),
		Justification: "pricing decisions persisted to the audit store",
		DataSources:   []string{"pricing_decisions"},
		At:            now,
	}
	if flagged > 0 {
		entry.Alerts = []string{fmt.Sprintf("%d line(s) require validation", flagged)}
	}
	draft.AppendTrace(domain.StatePricingDone, entry)
}

func (e *Engine) applyCurrency(ctx context.Context, draft *domain.QuoteDraft) error {
	conversions := make([]string, 0, len(draft.Lines))
	for i := range draft.Lines {
		line := &draft.Lines[i]
		line.ExchangeRate = 1
		if line.Currency == "" {
			line.Currency = draft.Currency
		}
		if line.Currency == draft.Currency {
			continue
		}
		rate, err := e.rates.Rate(ctx, line.Currency, draft.Currency)
		if err != nil {
			return err
		}
		line.ExchangeRate = rate
		line.UnitPrice = pricingdomain.RoundMoney(line.UnitPrice * rate)
		line.SupplierCost = pricingdomain.RoundMoney(line.SupplierCost * rate)
		conversions = append(conversions, fmt.Sprintf("%s %s->%s @%.4f", line.ArticleCode, line.Currency, draft.Currency, rate))
		line.Currency = draft.Currency
	}
	decision := "All lines already in " + draft.Currency
	sources := []string{}
	if len(conversions) > 0 {
		decision = "Converted: " + strings.Join(conversions, ", ")
		sources = []string{"exchange_rates"}
	}
	draft.AppendTrace(domain.StateCurrencyApplied, domain.TraceEntry{
		Decision:      decision,
		Justification: fmt.Sprintf("quote currency is %s", draft.Currency),
		DataSources:   sources,
		At:            e.clock.Now(),
	})
	return nil
}

// applyDiscount nets each line's supplier cost down by the supplier's
// negotiated discount. The sale price is untouched; the discount widens the
// effective margin.
func (e *Engine) applyDiscount(draft *domain.QuoteDraft) {
	applied := make([]string, 0, len(draft.Lines))
	for i := range draft.Lines {
		line := &draft.Lines[i]
		line.NetCost = pricingdomain.RoundMoney(line.SupplierCost * (1 - line.DiscountPercent/100))
		if line.DiscountPercent > 0 {
			applied = append(applied, fmt.Sprintf("%s -%.1f%% -> %.2f", line.ArticleCode, line.DiscountPercent, line.NetCost))
		}
	}
	decision := "No supplier discounts applicable"
	if len(applied) > 0 {
		decision = "Supplier discounts applied: " + strings.Join(applied, ", ")
	}
	draft.AppendTrace(domain.StateDiscountApplied, domain.TraceEntry{
		Decision:      decision,
		Justification: "negotiated supplier discounts net down the cost basis",
		DataSources:   []string{"suppliers"},
		At:            e.clock.Now(),
	})
}

func (e *Engine) applyMargin(draft *domain.QuoteDraft) {
	policy := e.policy.Get()
	var alerts []string
	margins := make([]string, 0, len(draft.Lines))
	subtotal := 0.0
	for i := range draft.Lines {
		line := &draft.Lines[i]
		if line.NetCost > 0 {
			line.MarginPercent = pricingdomain.MarginOnCost(line.UnitPrice, line.NetCost)
		}
		line.LineTotal = pricingdomain.RoundMoney(line.UnitPrice * line.Quantity)
		subtotal += line.LineTotal
		margins = append(margins, fmt.Sprintf("%s %.2f%%", line.ArticleCode, line.MarginPercent))
		if line.NetCost > 0 && line.MarginPercent < policy.MarginFloorPercent {
			alerts = append(alerts, fmt.Sprintf("%s margin %.2f%% below the %.2f%% floor",
				line.ArticleCode, line.MarginPercent, policy.MarginFloorPercent))
		}
	}
	draft.Subtotal = pricingdomain.RoundMoney(subtotal)
	draft.AppendTrace(domain.StateMarginApplied, domain.TraceEntry{
		Decision:      fmt.Sprintf("Effective margins on net cost: %s; subtotal %.2f %s", strings.Join(margins, ", "), draft.Subtotal, draft.Currency),
		Justification: "margin recomputed on the discounted cost basis",
		Alerts:        alerts,
		At:            e.clock.Now(),
	})
}

func (e *Engine) optimizeTransport(ctx context.Context, draft *domain.QuoteDraft) error {
	weight := 0.0
	for _, line := range draft.Lines {
		weight += line.WeightKg * line.Quantity
	}
	weight = math.Round(weight*100) / 100

	entry := domain.TraceEntry{
		DataSources: []string{"transport_options"},
		At:          e.clock.Now(),
	}
	if draft.ClientCountry == "" || weight == 0 {
		entry.Decision = "No transport costed"
		entry.Justification = "missing destination country or zero shipment weight"
		entry.Alerts = []string{"transport not included in the total"}
		draft.AppendTrace(domain.StateTransportOptimized, entry)
		draft.Total = draft.Subtotal
		return nil
	}

	option, err := e.transport.CheapestOption(ctx, draft.ClientCountry, weight)
	if err != nil {
		return err
	}
	if option == nil {
		entry.Decision = fmt.Sprintf("No carrier serves %s for %.2f kg", draft.ClientCountry, weight)
		entry.Justification = "no matching transport option"
		entry.Alerts = []string{"transport not included in the total"}
		draft.AppendTrace(domain.StateTransportOptimized, entry)
		draft.Total = draft.Subtotal
		return nil
	}

	draft.TransportCarrier = option.Carrier
	draft.TransportCost = pricingdomain.RoundMoney(option.PriceFor(weight))
	draft.TransportDays = option.DeliveryDays
	draft.Total = pricingdomain.RoundMoney(draft.Subtotal + draft.TransportCost)
	entry.Decision = fmt.Sprintf("Cheapest carrier %s: %.2f %s for %.2f kg, %d day(s)",
		option.Carrier, draft.TransportCost, draft.Currency, weight, option.DeliveryDays)
	entry.Justification = "lowest total cost among carriers able to carry the shipment"
	draft.AppendTrace(domain.StateTransportOptimized, entry)
	return nil
}

func (e *Engine) buildJustification(draft *domain.QuoteDraft) {
	var b strings.Builder
	for _, line := range draft.Lines {
		fmt.Fprintf(&b, "%s: %s\n", line.ArticleCode, line.Justification)
	}
	if draft.TransportCarrier != "" {
		fmt.Fprintf(&b, "Transport via %s: %.2f %s.\n", draft.TransportCarrier, draft.TransportCost, draft.Currency)
	}
	draft.Justification = strings.TrimRight(b.String(), "\n")
	draft.AppendTrace(domain.StateJustificationBuilt, domain.TraceEntry{
		Decision:      fmt.Sprintf("Justification assembled from %d line(s)", len(draft.Lines)),
		Justification: "per-line pricing justifications concatenated",
		At:            e.clock.Now(),
	})
}

func (e *Engine) validateCoherence(draft *domain.QuoteDraft) error {
	sum := 0.0
	for _, line := range draft.Lines {
		if line.UnitPrice <= 0 {
			return fmt.Errorf("non-positive price on line %s", line.ArticleCode)
		}
		sum += line.LineTotal
	}
	if math.Abs(pricingdomain.RoundMoney(sum)-draft.Subtotal) > 0.01 {
		return fmt.Errorf("line totals %.2f do not match subtotal %.2f", sum, draft.Subtotal)
	}
	if math.Abs(draft.Subtotal+draft.TransportCost-draft.Total) > 0.01 {
		return fmt.Errorf("subtotal %.2f + transport %.2f does not match total %.2f",
			draft.Subtotal, draft.TransportCost, draft.Total)
	}
	draft.AppendTrace(domain.StateCoherenceValidated, domain.TraceEntry{
		Decision:      fmt.Sprintf("Totals coherent: subtotal %.2f + transport %.2f = %.2f %s", draft.Subtotal, draft.TransportCost, draft.Total, draft.Currency),
		Justification: "all prices positive, totals reconcile",
		At:            e.clock.Now(),
	})
	return nil
}

func (e *Engine) generateQuote(draft *domain.QuoteDraft) error {
	draft.QuoteNumber = fmt.Sprintf("Q-%s-%s", draft.CreatedAt.Format("20060102"), draft.ID)
	document, err := e.renderer.Render(draft)
	if err != nil {
		return err
	}
	draft.Document = document
	draft.AppendTrace(domain.StateQuoteGenerated, domain.TraceEntry{
		Decision:      fmt.Sprintf("Quote %s generated (%d bytes)", draft.QuoteNumber, len(document)),
		Justification: "quote document rendered",
		At:            e.clock.Now(),
	})
	return nil
}

func (e *Engine) finish(draft *domain.QuoteDraft) {
	flagged := make([]string, 0)
	for _, line := range draft.Lines {
		if line.RequiresValidation {
			flagged = append(flagged, line.ArticleCode)
		}
	}
	if len(flagged) > 0 {
		draft.AppendTrace(domain.StateManualValidation, domain.TraceEntry{
			Decision:      fmt.Sprintf("Held for commercial validation: %s", strings.Join(flagged, ", ")),
			Justification: "flagged pricing decisions must be signed off before sending",
			Alerts:        []string{"quote not sent"},
			At:            e.clock.Now(),
		})
		return
	}
	draft.AppendTrace(domain.StateQuoteSent, domain.TraceEntry{
		Decision:      fmt.Sprintf("Quote %s released to %s", draft.QuoteNumber, draft.ClientCode),
		Justification: "no line required validation",
		At:            e.clock.Now(),
	})
}

// fail terminates the run in ERROR with a trace entry naming the step. The
// draft is still persisted and returned: the trail is the deliverable.
func (e *Engine) fail(ctx context.Context, draft *domain.QuoteDraft, step string, err error) (*domain.QuoteDraft, error) {
	e.markError(ctx, draft, step, err)
	return draft, nil
}

func (e *Engine) markError(ctx context.Context, draft *domain.QuoteDraft, step string, err error) {
	draft.AppendTrace(domain.StateError, domain.TraceEntry{
		Decision:      fmt.Sprintf("Workflow stopped at %s", step),
		Justification: err.Error(),
		Alerts:        []string{"manual intervention needed"},
		At:            e.clock.Now(),
	})
	e.persist(ctx, draft)
	obsmetrics.Default().IncWorkflowRun(string(domain.StateError))
	e.log.Error("quote run failed",
		zap.String("quote_id", draft.ID.String()),
		zap.String("client", draft.ClientCode),
		zap.String("step", step),
		zap.Error(err),
	)
}

func (e *Engine) persist(ctx context.Context, draft *domain.QuoteDraft) {
	if err := e.drafts.Save(ctx, e.db, draft); err != nil {
		e.log.Error("persist quote draft",
			zap.String("quote_id", draft.ID.String()),
			zap.Error(err),
		)
	}
}

func (e *Engine) Get(ctx context.Context, id string) (*domain.QuoteDraft, error) {
	draftID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	draft, err := e.drafts.FindByID(ctx, e.db, draftID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, domain.ErrNotFound
	}
	return draft, nil
}

func (e *Engine) List(ctx context.Context, filter domain.ListFilter) ([]domain.QuoteDraft, error) {
	return e.drafts.List(ctx, e.db, filter)
}

// Document re-renders the PDF from the stored draft. Rendering is pure over
// the draft contents, so the bytes match what the run produced.
func (e *Engine) Document(ctx context.Context, id string) ([]byte, error) {
	draft, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.QuoteNumber == "" {
		return nil, domain.ErrNotFound
	}
	return e.renderer.Render(draft)
}
