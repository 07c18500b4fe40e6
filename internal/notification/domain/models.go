package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventType string

const (
	EventValidationRequested EventType = "validation.requested"
	EventValidationResolved  EventType = "validation.resolved"
	EventValidationExpired   EventType = "validation.expired"
)

// Message is one outbound notification about a validation lifecycle event.
type Message struct {
	Type      EventType
	Subject   string
	Body      string
	Payload   map[string]any
	Recipient string
}

// Sink accepts notifications. The outbox implementation stores them durably;
// delivery to mail or chat is a separate consumer's job.
type Sink interface {
	Emit(ctx context.Context, tx *gorm.DB, msg Message) error
}

// OutboxEntry is the persisted form of a Message, drained by a delivery
// worker outside this process.
type OutboxEntry struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventType EventType      `json:"event_type" gorm:"type:text;not null;index"`
	Subject   string         `json:"subject" gorm:"type:text;not null"`
	Body      string         `json:"body" gorm:"type:text"`
	Payload   datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb"`
	Recipient string         `json:"recipient" gorm:"type:text"`

	DeliveredAt *time.Time `json:"delivered_at,omitempty" gorm:"index"`
	CreatedAt   time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (OutboxEntry) TableName() string { return "notification_outbox" }
