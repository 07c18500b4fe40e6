package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quotabl/quotabl/internal/clock"
	"github.com/quotabl/quotabl/internal/config"
	historydomain "github.com/quotabl/quotabl/internal/history/domain"
	obsmetrics "github.com/quotabl/quotabl/internal/observability/metrics"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
	suppliercostdomain "github.com/quotabl/quotabl/internal/suppliercost/domain"
	validationdomain "github.com/quotabl/quotabl/internal/validation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCurrency = "EUR"

// Confidence per case. CAS_3 and CAS_4 values are contractual; the history
// reuse cases carry the confidence the commercial team signed off on.
const (
	confidenceSAPFunction   = 1.0
	confidenceStableHistory = 0.9
	confidenceModified      = 0.75
	confidenceOthers        = 0.85
	confidenceNewProduct    = 0.7
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PricingPolicyHolder
	Repo        pricingdomain.Repository
	History     historydomain.Service
	CostSource  suppliercostdomain.CostSource
	Recommender suppliercostdomain.Recommender `optional:"true"`
	Validation  validationdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PricingPolicyHolder
	repo        pricingdomain.Repository
	history     historydomain.Service
	costSource  suppliercostdomain.CostSource
	recommender suppliercostdomain.Recommender
	validation  validationdomain.Service
	cache       *decisionCache
}

func New(p Params) pricingdomain.Service {
	policy := p.Policy.Get()
	svc := &Service{
		db:          p.DB,
		log:         p.Log.Named("pricing.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		repo:        p.Repo,
		history:     p.History,
		costSource:  p.CostSource,
		recommender: p.Recommender,
		cache:       newDecisionCache(p.Clock, policy.DecisionCacheTTL, policy.DecisionCacheEntries),
	}
	svc.validation = p.Validation
	return svc
}

func (s *Service) CalculatePrice(ctx context.Context, pctx pricingdomain.PricingContext) (*pricingdomain.PricingDecision, error) {
	start := time.Now()
	defer func() {
		obsmetrics.Default().ObserveDecisionDuration(time.Since(start))
	}()

	if strings.TrimSpace(pctx.ArticleCode) == "" ||
		strings.TrimSpace(pctx.CustomerCode) == "" ||
		pctx.Quantity <= 0 {
		return nil, pricingdomain.ErrInvalidContext
	}

	policy := s.policy.Get()
	margin := pctx.MarginPercent
	if margin <= 0 {
		margin = policy.DefaultMarginPercent
	}

	key := cacheKey(pctx, margin)
	if !pctx.ForceRecalculate {
		if cached, ok := s.cache.Get(key); ok {
			obsmetrics.Default().IncCacheHit()
			return cached, nil
		}
		obsmetrics.Default().IncCacheMiss()
	}

	decision, err := s.decide(ctx, pctx, margin, policy)
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, pctx, decision); err != nil {
		s.log.Error("persist pricing decision",
			zap.String("article", pctx.ArticleCode),
			zap.String("customer", pctx.CustomerCode),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", pricingdomain.ErrPricingFailed, err)
	}

	s.cache.Set(key, decision)
	obsmetrics.Default().IncDecision(string(decision.PriceCase), decision.RequiresValidation)
	s.log.Info("pricing decision",
		zap.String("article", decision.ArticleCode),
		zap.String("customer", decision.CustomerCode),
		zap.String("case", string(decision.PriceCase)),
		zap.Float64("unit_price", decision.UnitPrice),
		zap.Bool("requires_validation", decision.RequiresValidation),
	)
	return decision, nil
}

// decide runs the recommender strategy, then the four-case tree. All history
// reads happen here, strictly before anything is written.
func (s *Service) decide(ctx context.Context, pctx pricingdomain.PricingContext, margin float64, policy config.PricingPolicy) (*pricingdomain.PricingDecision, error) {
	if s.recommender != nil {
		rec, err := s.recommender.Recommend(ctx, pctx.ArticleCode, pctx.CustomerCode)
		if err != nil {
			s.log.Warn("pricing function unavailable, falling back to decision tree",
				zap.String("article", pctx.ArticleCode), zap.Error(err))
		} else if rec != nil {
			return s.fromRecommendation(pctx, margin, rec), nil
		}
	}

	cost, err := s.resolveCost(ctx, pctx)
	if err != nil {
		return nil, err
	}

	lastSale, err := s.history.LastSaleToCustomer(ctx, pctx.ArticleCode, pctx.CustomerCode, policy.SalesLookbackDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pricingdomain.ErrPricingFailed, err)
	}

	if lastSale != nil {
		variation, err := s.history.SupplierPriceVariation(ctx, pctx.ArticleCode, cost, policy.PurchaseLookbackDays)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pricingdomain.ErrPricingFailed, err)
		}
		if variation == nil || variation.IsStable {
			return s.stableHistoryCase(pctx, margin, policy, cost, lastSale, variation), nil
		}
		return s.modifiedHistoryCase(pctx, margin, cost, lastSale, variation), nil
	}

	others, err := s.history.SalesToOtherCustomers(ctx, pctx.ArticleCode, pctx.CustomerCode, policy.SalesLookbackDays, policy.OtherSalesLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pricingdomain.ErrPricingFailed, err)
	}
	if len(others) > 0 {
		if avg, ok := s.history.WeightedAveragePrice(others); ok {
			return s.othersHistoryCase(pctx, margin, policy, cost, others, avg), nil
		}
		// Zero total weight: fall through and price as a new product.
	}

	return s.newProductCase(pctx, margin, cost), nil
}

func (s *Service) resolveCost(ctx context.Context, pctx pricingdomain.PricingContext) (float64, error) {
	if pctx.SupplierCost != nil && *pctx.SupplierCost > 0 {
		return pricingdomain.RoundMoney(*pctx.SupplierCost), nil
	}
	if s.costSource != nil {
		cost, err := s.costSource.Cost(ctx, pctx.ArticleCode)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", pricingdomain.ErrPricingFailed, err)
		}
		if cost != nil && *cost > 0 {
			return pricingdomain.RoundMoney(*cost), nil
		}
	}
	return 0, pricingdomain.ErrPriceUnavailable
}

func (s *Service) fromRecommendation(pctx pricingdomain.PricingContext, margin float64, rec *suppliercostdomain.Recommendation) *pricingdomain.PricingDecision {
	price := pricingdomain.RoundMoney(rec.UnitPrice)
	justification := "Priced by external pricing function."
	if rec.Justification != "" {
		justification = fmt.Sprintf("Priced by external pricing function: %s", rec.Justification)
	}
	currency := rec.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	d := s.newDecision(pctx, pricingdomain.CaseSAPFunction, price, currency, margin, confidenceSAPFunction, justification, nil)
	return d
}

func (s *Service) stableHistoryCase(pctx pricingdomain.PricingContext, margin float64, policy config.PricingPolicy, cost float64, lastSale *historydomain.SaleRecord, variation *historydomain.PriceVariation) *pricingdomain.PricingDecision {
	price := pricingdomain.RoundMoney(lastSale.UnitPrice)
	marginOnCost := pricingdomain.MarginOnCost(price, cost)

	var alerts []string
	justification := fmt.Sprintf(
		"Last sale to %s on %s at %.2f %s (document %s); supplier cost stable, price reused.",
		pctx.CustomerCode,
		lastSale.SaleDate.Format("2006-01-02"),
		lastSale.UnitPrice,
		lastSale.Currency,
		lastSale.DocumentNumber,
	)
	if variation == nil {
		justification = fmt.Sprintf(
			"Last sale to %s on %s at %.2f %s (document %s); no recent purchase history, price reused.",
			pctx.CustomerCode,
			lastSale.SaleDate.Format("2006-01-02"),
			lastSale.UnitPrice,
			lastSale.Currency,
			lastSale.DocumentNumber,
		)
	}

	requiresValidation := false
	validationReason := ""
	appliedMargin := marginOnCost

	if marginOnCost < policy.MarginFloorPercent {
		price = pricingdomain.PriceWithMargin(cost, policy.MarginFloorPercent)
		appliedMargin = policy.MarginFloorPercent
		requiresValidation = true
		validationReason = "margin below floor"
		alerts = append(alerts, fmt.Sprintf(
			"historical price yields %.2f%% margin, below the %.2f%% floor; price recomputed to %.2f",
			marginOnCost, policy.MarginFloorPercent, price,
		))
		justification += fmt.Sprintf(
			" Margin on current cost was %.2f%%, below the %.2f%% floor; price recomputed at floor margin to %.2f.",
			marginOnCost, policy.MarginFloorPercent, price,
		)
	} else if marginOnCost > policy.MarginCeilingPercent {
		alerts = append(alerts, fmt.Sprintf(
			"margin %.2f%% exceeds the %.2f%% ceiling; price left untouched",
			marginOnCost, policy.MarginCeilingPercent,
		))
	}

	d := s.newDecision(pctx, pricingdomain.CaseStableHistory, price, lastSale.Currency, appliedMargin, confidenceStableHistory, justification, alerts)
	d.SupplierCost = &cost
	d.RequiresValidation = requiresValidation
	d.ValidationReason = validationReason
	applyLastSale(d, lastSale)
	applyVariation(d, variation)
	return d
}

func (s *Service) modifiedHistoryCase(pctx pricingdomain.PricingContext, margin float64, cost float64, lastSale *historydomain.SaleRecord, variation *historydomain.PriceVariation) *pricingdomain.PricingDecision {
	price := pricingdomain.PriceWithMargin(cost, margin)
	historical := pricingdomain.RoundMoney(lastSale.UnitPrice)
	delta := pricingdomain.RoundMoney(price - historical)
	deltaPercent := 0.0
	if historical != 0 {
		deltaPercent = pricingdomain.RoundMoney(delta / historical * 100)
	}

	justification := fmt.Sprintf(
		"Supplier cost moved %.2f%% since %s (%.2f -> %.2f). Historical price to %s was %.2f; recalculated price %.2f at %.2f%% margin (delta %+.2f, %+.2f%%). Commercial validation required.",
		variation.VariationPercent,
		variation.PreviousCostDate.Format("2006-01-02"),
		variation.PreviousCost,
		variation.CurrentCost,
		pctx.CustomerCode,
		historical,
		price,
		margin,
		delta,
		deltaPercent,
	)
	alerts := []string{fmt.Sprintf("supplier cost variation %.2f%% at or above the %.1f%% stability threshold",
		variation.VariationPercent, historydomain.StabilityThresholdPercent)}

	d := s.newDecision(pctx, pricingdomain.CaseModifiedHistory, price, lastSale.Currency, margin, confidenceModified, justification, alerts)
	d.SupplierCost = &cost
	d.RequiresValidation = true
	d.ValidationReason = "supplier cost unstable"
	applyLastSale(d, lastSale)
	applyVariation(d, variation)
	return d
}

func (s *Service) othersHistoryCase(pctx pricingdomain.PricingContext, margin float64, policy config.PricingPolicy, cost float64, others []historydomain.WeightedSale, avg float64) *pricingdomain.PricingDecision {
	confidence := confidenceOthers
	var alerts []string
	if len(others) < policy.MinReferenceSales {
		confidence = 0.0
		alerts = append(alerts, fmt.Sprintf(
			"only %d reference sales, below the %d needed for confidence",
			len(others), policy.MinReferenceSales,
		))
	}

	justification := fmt.Sprintf(
		"No prior sale to %s; weighted average of %d sales to other customers over the last %d days: %.2f.",
		pctx.CustomerCode, len(others), policy.SalesLookbackDays, avg,
	)

	d := s.newDecision(pctx, pricingdomain.CaseOthersHistory, avg, defaultCurrency, margin, confidence, justification, alerts)
	d.SupplierCost = &cost
	d.WeightedAverage = &avg
	d.ReferenceSales = len(others)
	return d
}

func (s *Service) newProductCase(pctx pricingdomain.PricingContext, margin float64, cost float64) *pricingdomain.PricingDecision {
	price := pricingdomain.PriceWithMargin(cost, margin)
	justification := fmt.Sprintf(
		"No sale history for %s; supplier cost %.2f marked up %.2f%% -> %.2f. Commercial validation required.",
		pctx.ArticleCode, cost, margin, price,
	)

	d := s.newDecision(pctx, pricingdomain.CaseNewProduct, price, defaultCurrency, margin, confidenceNewProduct, justification, nil)
	d.SupplierCost = &cost
	d.RequiresValidation = true
	d.ValidationReason = "new product, no sale history"
	return d
}

func (s *Service) newDecision(pctx pricingdomain.PricingContext, priceCase pricingdomain.PriceCase, price float64, currency string, margin, confidence float64, justification string, alerts []string) *pricingdomain.PricingDecision {
	now := s.clock.Now()
	if currency == "" {
		currency = defaultCurrency
	}
	createdBy := pctx.RequestedBy
	if createdBy == "" {
		createdBy = "pricing-engine"
	}
	d := &pricingdomain.PricingDecision{
		ID:            s.genID.Generate(),
		ArticleCode:   pctx.ArticleCode,
		CustomerCode:  pctx.CustomerCode,
		Quantity:      pctx.Quantity,
		PriceCase:     priceCase,
		UnitPrice:     price,
		LineTotal:     pricingdomain.RoundMoney(price * pctx.Quantity),
		Currency:      currency,
		Justification: justification,
		Confidence:    confidence,
		MarginPercent: pricingdomain.RoundMoney(margin),
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if len(alerts) > 0 {
		raw, err := json.Marshal(alerts)
		if err == nil {
			d.Alerts = raw
		}
	}
	return d
}

// persist writes the decision and, when flagged, the validation request in
// one transaction so a failed forward never leaves a half-recorded decision.
func (s *Service) persist(ctx context.Context, pctx pricingdomain.PricingContext, decision *pricingdomain.PricingDecision) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, decision); err != nil {
			return err
		}
		if !decision.RequiresValidation {
			return nil
		}
		var corr *validationdomain.SourceCorrelation
		if pctx.SourceMessageID != "" || pctx.SourceSubject != "" {
			corr = &validationdomain.SourceCorrelation{
				MessageID: pctx.SourceMessageID,
				Subject:   pctx.SourceSubject,
			}
		}
		_, err := s.validation.CreateRequest(ctx, tx, decision, corr)
		return err
	})
}

func (s *Service) GetDecision(ctx context.Context, id string) (*pricingdomain.PricingDecision, error) {
	decisionID, err := parseID(id)
	if err != nil {
		return nil, pricingdomain.ErrInvalidID
	}
	decision, err := s.repo.FindByID(ctx, s.db, decisionID)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, pricingdomain.ErrNotFound
	}
	return decision, nil
}

func (s *Service) ListDecisions(ctx context.Context, filter pricingdomain.ListFilter) ([]pricingdomain.PricingDecision, error) {
	if filter.Case != "" {
		if _, err := pricingdomain.ParseCase(filter.Case); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) Statistics(ctx context.Context, windowDays int) (*pricingdomain.Statistics, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := s.clock.Now().AddDate(0, 0, -windowDays)
	rows, err := s.repo.Aggregate(ctx, s.db, since)
	if err != nil {
		return nil, err
	}

	stats := &pricingdomain.Statistics{
		WindowDays: windowDays,
		ByCase:     make(map[pricingdomain.PriceCase]int64),
	}
	var sumConfidence float64
	for _, row := range rows {
		stats.ByCase[row.PriceCase] = row.Count
		stats.TotalDecisions += row.Count
		stats.FlaggedDecision += row.Flagged
		sumConfidence += row.SumConfidence
	}
	if stats.TotalDecisions > 0 {
		stats.ValidationRate = math.Round(float64(stats.FlaggedDecision)/float64(stats.TotalDecisions)*10000) / 10000
		stats.MeanConfidence = math.Round(sumConfidence/float64(stats.TotalDecisions)*1000) / 1000
	}
	return stats, nil
}

func (s *Service) ManualOverride(ctx context.Context, id string, req pricingdomain.OverrideRequest) (*pricingdomain.PricingDecision, error) {
	if req.UnitPrice <= 0 || strings.TrimSpace(req.Justification) == "" || strings.TrimSpace(req.OverriddenBy) == "" {
		return nil, pricingdomain.ErrInvalidOverride
	}

	decisionID, err := parseID(id)
	if err != nil {
		return nil, pricingdomain.ErrInvalidID
	}

	decision, err := s.repo.FindByID(ctx, s.db, decisionID)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, pricingdomain.ErrNotFound
	}

	revision := &pricingdomain.DecisionRevision{
		ID:                  s.genID.Generate(),
		DecisionID:          decision.ID,
		PriceBefore:         decision.UnitPrice,
		PriceAfter:          pricingdomain.RoundMoney(req.UnitPrice),
		MarginBefore:        decision.MarginPercent,
		MarginAfter:         pricingdomain.RoundMoney(req.MarginPercent),
		JustificationBefore: decision.Justification,
		JustificationAfter:  req.Justification,
		OverriddenBy:        req.OverriddenBy,
		CreatedAt:           s.clock.Now(),
	}

	decision.PriceCase = pricingdomain.CaseManual
	decision.UnitPrice = revision.PriceAfter
	decision.LineTotal = pricingdomain.RoundMoney(revision.PriceAfter * decision.Quantity)
	decision.MarginPercent = revision.MarginAfter
	decision.Justification = req.Justification
	decision.UpdatedAt = s.clock.Now()

	if err := s.repo.ApplyOverride(ctx, s.db, decision, revision); err != nil {
		return nil, err
	}
	return decision, nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}

func applyLastSale(d *pricingdomain.PricingDecision, sale *historydomain.SaleRecord) {
	if sale == nil {
		return
	}
	saleDate := sale.SaleDate
	salePrice := pricingdomain.RoundMoney(sale.UnitPrice)
	document := sale.DocumentNumber
	d.LastSaleDate = &saleDate
	d.LastSalePrice = &salePrice
	d.LastSaleDocument = &document
}

func applyVariation(d *pricingdomain.PricingDecision, variation *historydomain.PriceVariation) {
	if variation == nil {
		return
	}
	previous := variation.PreviousCost
	current := variation.CurrentCost
	percent := variation.VariationPercent
	stable := variation.IsStable
	previousDate := variation.PreviousCostDate
	d.PreviousCost = &previous
	d.CurrentCost = &current
	d.VariationPercent = &percent
	d.CostStable = &stable
	d.PreviousCostDate = &previousDate
}
