// Package domain contains the promotion usage ledger. Rows are keyed by
// (business_number, promotion_code), not by user id: the pharmacy's legal
// identity is harder to fabricate than a new account, so re-registering the
// same pharmacy cannot reset a promotion.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Record tracks how many billing cycles one business entity has consumed
// under one promotion.
type Record struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	BusinessNumber string       `gorm:"column:business_number;not null;uniqueIndex:idx_usage_business_promo" json:"business_number"`
	PromotionCode  string       `gorm:"column:promotion_code;not null;uniqueIndex:idx_usage_business_promo" json:"promotion_code"`
	UsedMonths     int          `gorm:"not null;default:0" json:"used_months"`
	IsExhausted    bool         `gorm:"not null;default:false" json:"is_exhausted"`
	LastAppliedAt  *time.Time   `gorm:"" json:"last_applied_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Record) TableName() string { return "promotion_usage_history" }

// Ledger is the durable per-business-entity record of promotion consumption.
type Ledger interface {
	// RecordUsage increments the consumed-cycle count for the pair and
	// recomputes exhaustion against budget. It upserts, so the first cycle
	// creates the row. Runs on the caller's transaction handle.
	RecordUsage(ctx context.Context, db *gorm.DB, businessNumber, promotionCode string, budget int, now time.Time) (*Record, error)
	IsExhausted(ctx context.Context, businessNumber, promotionCode string) (bool, error)
	Find(ctx context.Context, db *gorm.DB, businessNumber, promotionCode string) (*Record, error)
	ListByBusinessNumber(ctx context.Context, businessNumber string) ([]Record, error)
}
