// Package domain contains promotion and referral-code definitions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DiscountType is how a promotion alters the charge amount.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountAmount  DiscountType = "amount"
	DiscountFree    DiscountType = "free"
)

// Promotion defines a discount or free-period grant.
type Promotion struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"promotion_id"`
	Code             string       `gorm:"uniqueIndex;not null" json:"promotion_code"`
	Name             string       `gorm:"column:promotion_name;not null" json:"promotion_name"`
	DiscountType     DiscountType `gorm:"type:text;not null" json:"discount_type"`
	DiscountValue    int64        `gorm:"not null;default:0" json:"discount_value"`
	FreeMonths       int          `gorm:"not null;default:0" json:"free_months"`
	FirstPaymentOnly bool         `gorm:"not null;default:false" json:"first_payment_only"`
	MaxUsagePerUser  int          `gorm:"not null;default:1" json:"max_usage_per_user"`
	Active           bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	StartsAt         *time.Time   `gorm:"" json:"starts_at,omitempty"`
	EndsAt           *time.Time   `gorm:"" json:"ends_at,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Promotion) TableName() string { return "subscription_promotions" }

// WithinWindow reports whether the promotion's validity window covers now.
// A missing bound is open-ended.
func (p Promotion) WithinWindow(now time.Time) bool {
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}

// UsageBudget is how many billing cycles one business entity may consume
// under this promotion before the ledger marks it exhausted.
func (p Promotion) UsageBudget() int {
	if p.DiscountType == DiscountFree && p.FreeMonths > 0 {
		return p.FreeMonths
	}
	if p.MaxUsagePerUser > 0 {
		return p.MaxUsagePerUser
	}
	return 1
}

// ReferralCode maps a shareable code to one promotion.
type ReferralCode struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"referral_code_id"`
	Code        string       `gorm:"uniqueIndex;not null" json:"code"`
	PromotionID snowflake.ID `gorm:"not null;index" json:"promotion_id"`
	MaxUses     int          `gorm:"not null;default:0" json:"max_uses"`
	UsedCount   int          `gorm:"not null;default:0" json:"used_count"`
	Active      bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	ExpiresAt   *time.Time   `gorm:"" json:"expires_at,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ReferralCode) TableName() string { return "referral_codes" }
