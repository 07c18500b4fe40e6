package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, request *ValidationRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ValidationRequest, error)
	// FindByIDForUpdate row-locks the request so two validators cannot race
	// on the same verdict.
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*ValidationRequest, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status Status, decidedAt time.Time) error
	InsertDecision(ctx context.Context, tx *gorm.DB, decision *ValidationDecision) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]ValidationRequest, error)
	ExpirePending(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	ListSince(ctx context.Context, db *gorm.DB, since time.Time) ([]ValidationRequest, error)
}
