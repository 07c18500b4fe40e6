package repository

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/quotabl/quotabl/internal/clock"
	"github.com/quotabl/quotabl/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type outboxSink struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutboxSink(p Params) domain.Sink {
	return &outboxSink{
		db:    p.DB,
		log:   p.Log.Named("notification.outbox"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *outboxSink) Emit(ctx context.Context, tx *gorm.DB, msg domain.Message) error {
	if tx == nil {
		tx = s.db
	}
	entry := domain.OutboxEntry{
		ID:        s.genID.Generate(),
		EventType: msg.Type,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Recipient: msg.Recipient,
		CreatedAt: s.clock.Now(),
	}
	if len(msg.Payload) > 0 {
		raw, err := json.Marshal(msg.Payload)
		if err != nil {
			return err
		}
		entry.Payload = raw
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return err
	}
	s.log.Debug("notification queued",
		zap.String("type", string(msg.Type)),
		zap.String("subject", msg.Subject),
	)
	return nil
}
