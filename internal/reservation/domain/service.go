package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/pkg/db/pagination"
)

// Skip reasons reported per rejected candidate. Ineligibility is a result,
// not an error.
const (
	SkipAlreadyReserved    = "already_reserved"
	SkipHasPaymentHistory  = "already_has_payment_history"
	SkipActiveSubscription = "active_subscription"
	SkipReturningCustomer  = "returning_customer"
	SkipBusinessExhausted  = "promotion_exhausted_for_business"
	SkipUserDeleted        = "user_deleted"
	SkipUserNotFound       = "user_not_found"
	SkipLookupFailed       = "lookup_failed"
)

// Target selects the candidate set for a bulk assignment: an explicit id
// list, or every non-deleted user.
type Target struct {
	UserIDs []snowflake.ID
	All     bool
}

type SkippedCandidate struct {
	UserID snowflake.ID `json:"user_id"`
	Reason string       `json:"reason"`
}

type AssignResult struct {
	Assigned int                `json:"assigned"`
	Skipped  []SkippedCandidate `json:"skipped"`
	Message  string             `json:"message"`
}

type Candidate struct {
	UserID              snowflake.ID `json:"user_id"`
	Email               string       `json:"email"`
	PharmacyName        string       `json:"pharmacy_name"`
	PharmacistName      string       `json:"pharmacist_name"`
	BusinessNumber      string       `json:"business_number"`
	IsFirstPayment      bool         `json:"is_first_payment"`
	HasPendingPromotion bool         `json:"has_pending_promotion"`
	LastPaymentAt       *time.Time   `json:"last_payment_at,omitempty"`
}

type ListCandidatesRequest struct {
	BusinessNumber string
	PharmacyName   string
}

type ListAppliedRequest struct {
	PageToken string
	PageSize  int32
}

type AppliedHistoryResponse struct {
	Items    []*AppliedRow        `json:"items"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

// AssignmentService orchestrates reservation creation and cancellation.
type AssignmentService interface {
	BulkAssign(ctx context.Context, promotionID snowflake.ID, target Target, memo string) (AssignResult, error)
	SingleAssign(ctx context.Context, promotionID, userID snowflake.ID, memo string) (*Reservation, error)
	// RedeemReferral consumes a referral code on behalf of a subscriber and
	// creates a source=referral reservation through the same eligibility
	// path as any other grant.
	RedeemReferral(ctx context.Context, code string, userID snowflake.ID) (*Reservation, error)
	CancelReservation(ctx context.Context, id snowflake.ID) error
	ListCandidates(ctx context.Context, req ListCandidatesRequest) ([]Candidate, error)
	ListPending(ctx context.Context) ([]PendingRow, error)
	ListAppliedHistory(ctx context.Context, req ListAppliedRequest) (AppliedHistoryResponse, error)
}

var (
	ErrMissingPromotion  = errors.New("missing_promotion_id")
	ErrEmptyTarget       = errors.New("empty_user_id_list")
	ErrNotFound          = errors.New("reservation_not_found")
	ErrAlreadyApplied    = errors.New("already_applied")
	ErrAlreadyReserved   = errors.New("already_reserved")
	ErrNotEligible       = errors.New("not_eligible_for_first_payment_promotion")
	ErrBusinessExhausted = errors.New("promotion_exhausted_for_business")
)
