package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the payment ledger consumed by the promotion engine.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) error
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Payment, error)
	CountSuccessfulByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)
	FindLatestSuccessByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Payment, error)
}
