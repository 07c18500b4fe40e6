package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/quotabl/quotabl/internal/quote/domain"
	"gorm.io/gorm"
)

type clientDirectory struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewClientDirectory(db *gorm.DB, genID *snowflake.Node) domain.ClientDirectory {
	return &clientDirectory{db: db, genID: genID}
}

func (r *clientDirectory) FindByCode(ctx context.Context, code string) (*domain.Client, error) {
	var client domain.Client
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}

func (r *clientDirectory) Create(ctx context.Context, client *domain.Client) error {
	if client.ID == 0 {
		client.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).Create(client).Error
}

type productCatalog struct {
	db *gorm.DB
}

func NewProductCatalog(db *gorm.DB) domain.ProductCatalog {
	return &productCatalog{db: db}
}

func (r *productCatalog) FindByCode(ctx context.Context, code string) (*domain.Product, error) {
	var product domain.Product
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

type supplierDirectory struct {
	db *gorm.DB
}

func NewSupplierDirectory(db *gorm.DB) domain.SupplierDirectory {
	return &supplierDirectory{db: db}
}

func (r *supplierDirectory) FindByCode(ctx context.Context, code string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&supplier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &supplier, nil
}

type rateSource struct {
	db *gorm.DB
}

func NewRateSource(db *gorm.DB) domain.RateSource {
	return &rateSource{db: db}
}

func (r *rateSource) Rate(ctx context.Context, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return 1, nil
	}
	var rate domain.ExchangeRate
	err := r.db.WithContext(ctx).
		Where("from_currency = ? AND to_currency = ?", from, to).
		Order("effective_at DESC").
		First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("no exchange rate for %s->%s", from, to)
		}
		return 0, err
	}
	return rate.Rate, nil
}

type transportRater struct {
	db *gorm.DB
}

func NewTransportRater(db *gorm.DB) domain.TransportRater {
	return &transportRater{db: db}
}

// CheapestOption loads every option able to carry the weight for the
// destination and picks the lowest total. (nil, nil) when no carrier serves
// the country.
func (r *transportRater) CheapestOption(ctx context.Context, country string, weightKg float64) (*domain.TransportOption, error) {
	var options []domain.TransportOption
	err := r.db.WithContext(ctx).
		Where("country = ? AND max_weight_kg >= ?", strings.ToUpper(strings.TrimSpace(country)), weightKg).
		Find(&options).Error
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return nil, nil
	}
	best := options[0]
	for _, opt := range options[1:] {
		if opt.PriceFor(weightKg) < best.PriceFor(weightKg) {
			best = opt
		}
	}
	return &best, nil
}

type draftStore struct{}

func NewDraftStore() domain.DraftStore {
	return &draftStore{}
}

func (s *draftStore) Save(ctx context.Context, db *gorm.DB, draft *domain.QuoteDraft) error {
	lines, err := json.Marshal(draft.Lines)
	if err != nil {
		return err
	}
	trace, err := json.Marshal(draft.Trace)
	if err != nil {
		return err
	}
	record := domain.DraftRecord{
		ID:               draft.ID,
		QuoteNumber:      draft.QuoteNumber,
		State:            draft.State,
		ClientCode:       draft.ClientCode,
		ClientName:       draft.ClientName,
		ClientCountry:    draft.ClientCountry,
		Lines:            lines,
		Trace:            trace,
		TransportCarrier: draft.TransportCarrier,
		TransportCost:    draft.TransportCost,
		TransportDays:    draft.TransportDays,
		Subtotal:         draft.Subtotal,
		Total:            draft.Total,
		Currency:         draft.Currency,
		Justification:    draft.Justification,
		RequestedBy:      draft.RequestedBy,
		CreatedAt:        draft.CreatedAt,
		UpdatedAt:        draft.UpdatedAt,
	}
	return db.WithContext(ctx).Create(&record).Error
}

func (s *draftStore) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.QuoteDraft, error) {
	var record domain.DraftRecord
	err := db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return recordToDraft(&record)
}

func (s *draftStore) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.QuoteDraft, error) {
	stmt := db.WithContext(ctx).Model(&domain.DraftRecord{})
	if filter.ClientCode != "" {
		stmt = stmt.Where("client_code = ?", filter.ClientCode)
	}
	if filter.State != "" {
		stmt = stmt.Where("state = ?", filter.State)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var records []domain.DraftRecord
	if err := stmt.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	drafts := make([]domain.QuoteDraft, 0, len(records))
	for i := range records {
		draft, err := recordToDraft(&records[i])
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *draft)
	}
	return drafts, nil
}

func recordToDraft(record *domain.DraftRecord) (*domain.QuoteDraft, error) {
	draft := &domain.QuoteDraft{
		ID:               record.ID,
		QuoteNumber:      record.QuoteNumber,
		State:            record.State,
		ClientCode:       record.ClientCode,
		ClientName:       record.ClientName,
		ClientCountry:    record.ClientCountry,
		TransportCarrier: record.TransportCarrier,
		TransportCost:    record.TransportCost,
		TransportDays:    record.TransportDays,
		Subtotal:         record.Subtotal,
		Total:            record.Total,
		Currency:         record.Currency,
		Justification:    record.Justification,
		RequestedBy:      record.RequestedBy,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
	if len(record.Lines) > 0 {
		if err := json.Unmarshal(record.Lines, &draft.Lines); err != nil {
			return nil, err
		}
	}
	if len(record.Trace) > 0 {
		if err := json.Unmarshal(record.Trace, &draft.Trace); err != nil {
			return nil, err
		}
	}
	return draft, nil
}
