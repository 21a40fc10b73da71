package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Payment is one recorded charge attempt. Immutable once recorded.
type Payment struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"payment_id"`
	UserID     snowflake.ID `gorm:"not null;index" json:"user_id"`
	Status     Status       `gorm:"type:text;not null" json:"status"`
	Amount     int64        `gorm:"not null" json:"amount"`
	BaseAmount int64        `gorm:"not null;default:0" json:"base_amount"`
	ApprovedAt *time.Time   `gorm:"" json:"approved_at,omitempty"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Payment) TableName() string { return "billing_payments" }

// EventRecord stores ingested gateway events for idempotent processing.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	ProviderEventID string         `gorm:"uniqueIndex;not null" json:"provider_event_id"`
	EventType       string         `gorm:"type:text;not null" json:"event_type"`
	UserID          snowflake.ID   `gorm:"not null;index" json:"user_id"`
	Payload         datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `gorm:"" json:"processed_at,omitempty"`
}

func (EventRecord) TableName() string { return "payment_events" }

const EventTypePaymentSucceeded = "payment_succeeded"

// SucceededEvent is the external trigger announcing a confirmed charge. The
// gateway protocol itself is out of scope; this arrives post-confirmation.
type SucceededEvent struct {
	ProviderEventID string       `json:"provider_event_id"`
	UserID          snowflake.ID `json:"user_id"`
	BaseAmount      int64        `json:"base_amount"`
	OccurredAt      time.Time    `json:"occurred_at"`
}

var (
	ErrInvalidEvent   = errors.New("invalid_payment_event")
	ErrDuplicateEvent = errors.New("duplicate_payment_event")
)
