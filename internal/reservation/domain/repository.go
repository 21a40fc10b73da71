package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

// PendingRow is a pending reservation joined to its user and promotion for
// the admin view.
type PendingRow struct {
	Reservation
	PharmacyName   string `json:"pharmacy_name"`
	PharmacistName string `json:"pharmacist_name"`
	BusinessNumber string `json:"business_number"`
	PromotionName  string `json:"promotion_name"`
	PromotionCode  string `json:"promotion_code"`
}

// AppliedRow is an applied reservation joined to the consuming payment for
// the audit trail.
type AppliedRow struct {
	Reservation
	PharmacyName   string     `json:"pharmacy_name"`
	BusinessNumber string     `json:"business_number"`
	PromotionName  string     `json:"promotion_name"`
	PromotionCode  string     `json:"promotion_code"`
	PaymentAmount  int64      `json:"payment_amount"`
	PaymentAt      *time.Time `json:"payment_at,omitempty"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reservation *Reservation) error
	InsertBatch(ctx context.Context, db *gorm.DB, reservations []*Reservation, batchSize int) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reservation, error)
	// FindOldestPending returns the user's oldest un-applied reservation
	// created after cutoff (zero cutoff means no lower bound). FIFO by
	// created_at so at most one grant is consumed per billing cycle.
	FindOldestPending(ctx context.Context, db *gorm.DB, userID snowflake.ID, cutoff time.Time) (*Reservation, error)
	HasPending(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
	// FindExistingUserIDs returns the subset of userIDs that already hold a
	// reservation for the promotion, applied or not.
	FindExistingUserIDs(ctx context.Context, db *gorm.DB, promotionID snowflake.ID, userIDs []snowflake.ID) ([]snowflake.ID, error)
	// MarkApplied stamps applied_at/payment_id only while applied_at is
	// still null. Returns rows affected; zero means a concurrent apply or
	// cancel won.
	MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID snowflake.ID, at time.Time) (int64, error)
	// MarkCancelled cancels only while applied_at is null.
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
	// TouchPending bumps updated_at only while the reservation is still
	// pending. Used to detect a racing cancel inside a transaction that
	// consumes a free cycle without stamping applied_at.
	TouchPending(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
	ListPending(ctx context.Context, db *gorm.DB) ([]PendingRow, error)
	// ListApplied pages through the audit trail newest first. A nil cursor
	// starts from the top; limit rows plus one are returned so the caller
	// can tell whether more remain.
	ListApplied(ctx context.Context, db *gorm.DB, cursor *pagination.Cursor, limit int) ([]*AppliedRow, error)
}
