// Package domain contains pending promotion grants ("reservations") and the
// assignment contracts around them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Source records how a reservation came to exist.
type Source string

const (
	SourceAdminAssigned Source = "admin_assigned"
	SourceReferral      Source = "referral"
	SourceUserApplied   Source = "user_applied"
)

// Status is the reservation lifecycle state. Reserved and selected move to
// applied only through a successful payment, or to cancelled only while
// un-applied. Applied and cancelled are terminal.
type Status string

const (
	StatusReserved  Status = "reserved"
	StatusSelected  Status = "selected"
	StatusApplied   Status = "applied"
	StatusCancelled Status = "cancelled"
)

// Reservation is a not-yet-consumed grant of one promotion to one user,
// resolved by exactly one future successful payment. The (user_id,
// promotion_id) pair is unique; a conflicting insert means the grant
// already exists and is never an error.
type Reservation struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"reservation_id"`
	UserID      snowflake.ID  `gorm:"not null;uniqueIndex:idx_reservation_user_promo" json:"user_id"`
	PromotionID snowflake.ID  `gorm:"not null;uniqueIndex:idx_reservation_user_promo" json:"promotion_id"`
	Source      Source        `gorm:"type:text;not null" json:"source"`
	Status      Status        `gorm:"type:text;not null" json:"status"`
	Memo        string        `gorm:"type:text" json:"memo,omitempty"`
	AppliedAt   *time.Time    `gorm:"" json:"applied_at,omitempty"`
	PaymentID   *snowflake.ID `gorm:"" json:"payment_id,omitempty"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Reservation) TableName() string { return "pending_promotions" }

// Applied reports whether the reservation has been consumed by a payment.
func (r Reservation) Applied() bool { return r.AppliedAt != nil }
