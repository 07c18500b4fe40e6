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
	notificationdomain "github.com/quotabl/quotabl/internal/notification/domain"
	obsmetrics "github.com/quotabl/quotabl/internal/observability/metrics"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
	"github.com/quotabl/quotabl/internal/validation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PricingPolicyHolder
	Repo        domain.Repository
	PricingRepo pricingdomain.Repository
	Sink        notificationdomain.Sink
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PricingPolicyHolder
	repo        domain.Repository
	pricingRepo pricingdomain.Repository
	sink        notificationdomain.Sink
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("validation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		repo:        p.Repo,
		pricingRepo: p.PricingRepo,
		sink:        p.Sink,
	}
}

func (s *Service) CreateRequest(ctx context.Context, tx *gorm.DB, decision *pricingdomain.PricingDecision, corr *domain.SourceCorrelation) (*domain.ValidationRequest, error) {
	if decision == nil || decision.ID == 0 {
		return nil, domain.ErrInvalidDecision
	}
	if tx == nil {
		tx = s.db
	}

	policy := s.policy.Get()
	priority := derivePriority(decision, policy)
	ttl := policy.DefaultValidationTTL
	if priority == domain.PriorityUrgent {
		ttl = policy.UrgentValidationTTL
	}

	snapshot, err := buildSnapshot(decision)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	request := &domain.ValidationRequest{
		ID:              s.genID.Generate(),
		DecisionID:      decision.ID,
		RequestType:     domain.TypePricing,
		Priority:        priority,
		Status:          domain.StatusPending,
		ContextSnapshot: snapshot,
		RequestedBy:     decision.CreatedBy,
		RequestedAt:     now,
		ExpiresAt:       now.Add(ttl),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if corr != nil {
		if corr.MessageID != "" {
			messageID := corr.MessageID
			request.SourceMessageID = &messageID
		}
		if corr.Subject != "" {
			subject := corr.Subject
			request.SourceSubject = &subject
		}
	}

	if err := s.repo.Insert(ctx, tx, request); err != nil {
		return nil, err
	}

	msg := notificationdomain.Message{
		Type: notificationdomain.EventValidationRequested,
		Subject: fmt.Sprintf("[%s] Price validation needed: %s for %s",
			strings.ToUpper(string(priority)), decision.ArticleCode, decision.CustomerCode),
		Body: decision.Justification,
		Payload: map[string]any{
			"request_id":  request.ID.String(),
			"decision_id": decision.ID.String(),
			"priority":    priority,
			"expires_at":  request.ExpiresAt,
		},
	}
	if err := s.sink.Emit(ctx, tx, msg); err != nil {
		s.log.Warn("emit validation notification", zap.Error(err))
	}

	obsmetrics.Default().IncValidationCreated(string(priority))
	s.log.Info("validation request created",
		zap.String("request_id", request.ID.String()),
		zap.String("decision_id", decision.ID.String()),
		zap.String("priority", string(priority)),
		zap.Time("expires_at", request.ExpiresAt),
	)
	return request, nil
}

// derivePriority maps the decision onto a priority. Cost variation dominates,
// then the new-product case; everything else waits in the normal queue.
func derivePriority(decision *pricingdomain.PricingDecision, policy config.PricingPolicy) domain.Priority {
	if decision.VariationPercent != nil {
		abs := math.Abs(*decision.VariationPercent)
		if abs >= policy.UrgentVariationPercent {
			return domain.PriorityUrgent
		}
		if abs >= policy.HighVariationPercent {
			return domain.PriorityHigh
		}
	}
	if decision.PriceCase == pricingdomain.CaseNewProduct {
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}

func buildSnapshot(decision *pricingdomain.PricingDecision) ([]byte, error) {
	snapshot := domain.ContextSnapshot{
		ArticleCode:      decision.ArticleCode,
		CustomerCode:     decision.CustomerCode,
		Quantity:         decision.Quantity,
		PriceCase:        string(decision.PriceCase),
		UnitPrice:        decision.UnitPrice,
		LineTotal:        decision.LineTotal,
		Currency:         decision.Currency,
		MarginPercent:    decision.MarginPercent,
		SupplierCost:     decision.SupplierCost,
		Justification:    decision.Justification,
		ValidationReason: decision.ValidationReason,
		LastSaleDate:     decision.LastSaleDate,
		LastSalePrice:    decision.LastSalePrice,
		LastSaleDocument: decision.LastSaleDocument,
		VariationPercent: decision.VariationPercent,
	}
	if len(decision.Alerts) > 0 {
		var alerts []string
		if err := json.Unmarshal(decision.Alerts, &alerts); err == nil {
			snapshot.Alerts = alerts
		}
	}
	return json.Marshal(snapshot)
}

func (s *Service) Decide(ctx context.Context, id string, verdict domain.VerdictRequest) (*domain.ValidationRequest, error) {
	requestID, err := parseID(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	if err := validateVerdict(verdict); err != nil {
		return nil, err
	}

	var request *domain.ValidationRequest
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		request, err = s.repo.FindByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request == nil {
			return domain.ErrNotFound
		}
		if request.Status.Terminal() {
			return domain.ErrAlreadyDecided
		}

		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, request.ID, verdict.Status, now); err != nil {
			return err
		}
		record := &domain.ValidationDecision{
			ID:             s.genID.Generate(),
			RequestID:      request.ID,
			Status:         verdict.Status,
			ApprovedPrice:  verdict.ApprovedPrice,
			ApprovedMargin: verdict.ApprovedMargin,
			Comment:        verdict.Comment,
			ValidatedBy:    verdict.ValidatedBy,
			CreatedAt:      now,
		}
		if err := s.repo.InsertDecision(ctx, tx, record); err != nil {
			return err
		}

		if verdict.Status == domain.StatusModified {
			if err := s.propagateModification(ctx, tx, request, verdict, now); err != nil {
				return err
			}
		}

		request.Status = verdict.Status
		request.DecidedAt = &now
		request.UpdatedAt = now

		msg := notificationdomain.Message{
			Type: notificationdomain.EventValidationResolved,
			Subject: fmt.Sprintf("Validation %s: request %s",
				verdict.Status, request.ID.String()),
			Body: verdict.Comment,
			Payload: map[string]any{
				"request_id":   request.ID.String(),
				"decision_id":  request.DecisionID.String(),
				"status":       verdict.Status,
				"validated_by": verdict.ValidatedBy,
			},
		}
		if err := s.sink.Emit(ctx, tx, msg); err != nil {
			s.log.Warn("emit validation notification", zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	obsmetrics.Default().IncValidationResolved(string(verdict.Status))
	s.log.Info("validation decided",
		zap.String("request_id", request.ID.String()),
		zap.String("status", string(verdict.Status)),
		zap.String("validated_by", verdict.ValidatedBy),
	)
	return request, nil
}

// propagateModification rewrites the underlying pricing decision with the
// validator's corrected numbers, leaving a revision behind.
func (s *Service) propagateModification(ctx context.Context, tx *gorm.DB, request *domain.ValidationRequest, verdict domain.VerdictRequest, now time.Time) error {
	decision, err := s.pricingRepo.FindByID(ctx, tx, request.DecisionID)
	if err != nil {
		return err
	}
	if decision == nil {
		return domain.ErrInvalidDecision
	}

	priceAfter := pricingdomain.RoundMoney(*verdict.ApprovedPrice)
	marginAfter := decision.MarginPercent
	if verdict.ApprovedMargin != nil {
		marginAfter = pricingdomain.RoundMoney(*verdict.ApprovedMargin)
	} else if decision.SupplierCost != nil && *decision.SupplierCost > 0 {
		marginAfter = pricingdomain.MarginOnCost(priceAfter, *decision.SupplierCost)
	}
	justification := verdict.Comment
	if justification == "" {
		justification = fmt.Sprintf("Price corrected to %.2f during validation by %s.", priceAfter, verdict.ValidatedBy)
	}

	revision := &pricingdomain.DecisionRevision{
		ID:                  s.genID.Generate(),
		DecisionID:          decision.ID,
		PriceBefore:         decision.UnitPrice,
		PriceAfter:          priceAfter,
		MarginBefore:        decision.MarginPercent,
		MarginAfter:         marginAfter,
		JustificationBefore: decision.Justification,
		JustificationAfter:  justification,
		OverriddenBy:        verdict.ValidatedBy,
		CreatedAt:           now,
	}

	decision.PriceCase = pricingdomain.CaseManual
	decision.UnitPrice = priceAfter
	decision.LineTotal = pricingdomain.RoundMoney(priceAfter * decision.Quantity)
	decision.MarginPercent = marginAfter
	decision.Justification = justification
	decision.UpdatedAt = now

	return s.pricingRepo.ApplyOverride(ctx, tx, decision, revision)
}

func validateVerdict(verdict domain.VerdictRequest) error {
	if strings.TrimSpace(verdict.ValidatedBy) == "" {
		return domain.ErrInvalidVerdict
	}
	switch verdict.Status {
	case domain.StatusApproved, domain.StatusRejected:
		return nil
	case domain.StatusModified:
		if verdict.ApprovedPrice == nil || *verdict.ApprovedPrice <= 0 {
			return domain.ErrInvalidVerdict
		}
		return nil
	default:
		return domain.ErrInvalidVerdict
	}
}

func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	expired, err := s.repo.ExpirePending(ctx, s.db, now)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		obsmetrics.Default().AddValidationsExpired(int(expired))
		s.log.Info("validation requests expired", zap.Int64("count", expired))
		msg := notificationdomain.Message{
			Type:    notificationdomain.EventValidationExpired,
			Subject: fmt.Sprintf("%d validation request(s) expired without a verdict", expired),
			Payload: map[string]any{"count": expired, "expired_at": now},
		}
		if err := s.sink.Emit(ctx, nil, msg); err != nil {
			s.log.Warn("emit expiration notification", zap.Error(err))
		}
	}
	return int(expired), nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.ValidationRequest, error) {
	requestID, err := parseID(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	request, err := s.repo.FindByID(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, domain.ErrNotFound
	}
	return request, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.ValidationRequest, error) {
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) Statistics(ctx context.Context, windowDays int) (*domain.Statistics, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := s.clock.Now().AddDate(0, 0, -windowDays)
	requests, err := s.repo.ListSince(ctx, s.db, since)
	if err != nil {
		return nil, err
	}

	stats := &domain.Statistics{
		WindowDays: windowDays,
		ByStatus:   make(map[domain.Status]int64),
		ByPriority: make(map[domain.Priority]int64),
		ByCase:     make(map[string]int64),
	}
	var decided int64
	var totalLatency time.Duration
	for i := range requests {
		req := &requests[i]
		stats.Total++
		stats.ByStatus[req.Status]++
		stats.ByPriority[req.Priority]++

		var snapshot domain.ContextSnapshot
		if err := json.Unmarshal(req.ContextSnapshot, &snapshot); err == nil && snapshot.PriceCase != "" {
			stats.ByCase[snapshot.PriceCase]++
		}
		if req.DecidedAt != nil && req.Status != domain.StatusExpired {
			decided++
			totalLatency += req.DecidedAt.Sub(req.RequestedAt)
		}
	}
	if stats.Total > 0 {
		approved := stats.ByStatus[domain.StatusApproved] + stats.ByStatus[domain.StatusModified]
		stats.ApprovalRate = math.Round(float64(approved)/float64(stats.Total)*10000) / 10000
		stats.RejectionRate = math.Round(float64(stats.ByStatus[domain.StatusRejected])/float64(stats.Total)*10000) / 10000
	}
	if decided > 0 {
		stats.MeanTimeToDecision = totalLatency / time.Duration(decided)
	}
	return stats, nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
