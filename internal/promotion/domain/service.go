package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type ListPromotionRequest struct {
	ActiveOnly       bool
	FirstPaymentOnly bool
}

type ListPromotionResponse struct {
	Promotions []Promotion `json:"promotions"`
}

// Catalog is the read-only promotion catalog plus referral resolution.
type Catalog interface {
	List(ctx context.Context, req ListPromotionRequest) (ListPromotionResponse, error)
	GetByID(ctx context.Context, id snowflake.ID) (Promotion, error)
	GetByCode(ctx context.Context, code string) (Promotion, error)
	// Peek validates a referral code and returns the bound promotion
	// without consuming a use. Callers that create a grant must follow up
	// with Resolve, which re-checks the guards at write time.
	Peek(ctx context.Context, code string) (Promotion, error)
	// Resolve redeems a referral code: it increments used_count under the
	// max_uses/expiry/active guards and returns the bound promotion.
	Resolve(ctx context.Context, code string) (Promotion, error)
}

var (
	ErrNotFound         = errors.New("promotion_not_found")
	ErrInactive         = errors.New("promotion_inactive")
	ErrCodeNotFound     = errors.New("referral_code_not_found")
	ErrCodeInactive     = errors.New("referral_code_inactive")
	ErrCodeExpired      = errors.New("referral_code_expired")
	ErrCodeExhausted    = errors.New("referral_code_exhausted")
	ErrInvalidPromotion = errors.New("invalid_promotion")
)
