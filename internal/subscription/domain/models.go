// Package domain contains the subscription records consumed by the
// promotion engine. Renewal scheduling and dunning live elsewhere.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

// Subscription captures a user's auto-billing agreement. At most one
// subscription drives auto-billing per user at a time.
type Subscription struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID `gorm:"not null;index" json:"user_id"`
	Status        Status       `gorm:"type:text;not null" json:"status"`
	NextBillingAt *time.Time   `gorm:"" json:"next_billing_at,omitempty"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Subscription) TableName() string { return "user_subscriptions" }
