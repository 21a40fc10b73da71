// Package domain contains the charge-time promotion calculator contracts.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	reservationdomain "github.com/pillstack/backoffice/internal/reservation/domain"
)

// Charge is the computed outcome for one billing cycle. Reservation is nil
// when no discount applies and NextAmount equals the base price.
type Charge struct {
	BaseAmount  int64                          `json:"base_amount"`
	NextAmount  int64                          `json:"next_amount"`
	Reservation *reservationdomain.Reservation `json:"reservation,omitempty"`
	Discount    string                         `json:"discount_type,omitempty"`
}

type ApplyRequest struct {
	UserID     snowflake.ID
	PaymentID  snowflake.ID
	OccurredAt time.Time
}

type ApplyResult struct {
	Applied         bool         `json:"applied"`
	ReservationID   snowflake.ID `json:"reservation_id,omitempty"`
	PromotionCode   string       `json:"promotion_code,omitempty"`
	UsedMonths      int          `json:"used_months,omitempty"`
	LedgerExhausted bool         `json:"ledger_exhausted,omitempty"`
}

// Calculator turns (base price, active reservation) into a final amount and
// settles reservation/ledger state when a charge succeeds.
type Calculator interface {
	// ComputeCharge reads the user's oldest un-applied, non-expired
	// reservation and computes the next amount. No side effects.
	ComputeCharge(ctx context.Context, userID snowflake.ID, basePrice int64) (Charge, error)
	// ApplyOnPayment settles the consumed reservation and the usage ledger
	// as one unit of work. Only a successful payment event triggers it.
	ApplyOnPayment(ctx context.Context, req ApplyRequest) (ApplyResult, error)
}

var (
	ErrInvalidBasePrice = errors.New("invalid_base_price")
	// ErrConcurrentUpdate means a racing cancel or apply won; the whole
	// unit of work rolled back.
	ErrConcurrentUpdate = errors.New("reservation_concurrently_updated")
)
