package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/internal/billing/domain"
	"github.com/pillstack/backoffice/internal/clock"
	"github.com/pillstack/backoffice/internal/config"
	"github.com/pillstack/backoffice/internal/observability/metrics"
	catalogrepo "github.com/pillstack/backoffice/internal/promotion/catalog/repository"
	promotiondomain "github.com/pillstack/backoffice/internal/promotion/domain"
	reservationdomain "github.com/pillstack/backoffice/internal/reservation/domain"
	usagedomain "github.com/pillstack/backoffice/internal/usagehistory/domain"
	userdomain "github.com/pillstack/backoffice/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Cfg             config.Config
	ReservationRepo reservationdomain.Repository
	PromotionRepo   catalogrepo.Repository
	UserRepo        userdomain.Repository
	Ledger          usagedomain.Ledger
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	reservationTTL  time.Duration
	reservationRepo reservationdomain.Repository
	promotionRepo   catalogrepo.Repository
	userRepo        userdomain.Repository
	ledger          usagedomain.Ledger
}

func New(p Params) domain.Calculator {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("billing.calculator"),
		clock:           p.Clock,
		reservationTTL:  p.Cfg.ReservationTTL,
		reservationRepo: p.ReservationRepo,
		promotionRepo:   p.PromotionRepo,
		userRepo:        p.UserRepo,
		ledger:          p.Ledger,
	}
}

func (s *Service) ComputeCharge(ctx context.Context, userID snowflake.ID, basePrice int64) (domain.Charge, error) {
	if basePrice < 0 {
		return domain.Charge{}, domain.ErrInvalidBasePrice
	}

	reservation, promo, err := s.activeReservation(ctx, s.db, userID)
	if err != nil {
		return domain.Charge{}, err
	}
	if reservation == nil {
		return domain.Charge{BaseAmount: basePrice, NextAmount: basePrice}, nil
	}

	return domain.Charge{
		BaseAmount:  basePrice,
		NextAmount:  DiscountedAmount(basePrice, promo.DiscountType, promo.DiscountValue),
		Reservation: reservation,
		Discount:    string(promo.DiscountType),
	}, nil
}

// ApplyOnPayment settles the oldest pending reservation against a confirmed
// payment: stamp applied_at (conditionally) and upsert the usage ledger for
// the pharmacy's business number, all in one transaction. A free-period
// reservation is only stamped once its free-month budget exhausts, so one
// reservation can cover several zero-amount cycles.
func (s *Service) ApplyOnPayment(ctx context.Context, req domain.ApplyRequest) (domain.ApplyResult, error) {
	now := req.OccurredAt
	if now.IsZero() {
		now = s.clock.Now()
	}

	var result domain.ApplyResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reservation, promo, err := s.activeReservation(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return nil // no discount reserved; nothing to settle
		}

		user, err := s.userRepo.FindByID(ctx, tx, req.UserID)
		if err != nil {
			return fmt.Errorf("load user %s: %w", req.UserID, err)
		}
		if user == nil {
			return userdomain.ErrNotFound
		}

		record, err := s.ledger.RecordUsage(ctx, tx, user.BusinessNumber, promo.Code, promo.UsageBudget(), now)
		if err != nil {
			return fmt.Errorf("record usage for business %s: %w", user.BusinessNumber, err)
		}

		consumed := promo.DiscountType != promotiondomain.DiscountFree || record.IsExhausted
		if consumed {
			rows, err := s.reservationRepo.MarkApplied(ctx, tx, reservation.ID, req.PaymentID, now)
			if err != nil {
				return err
			}
			if rows == 0 {
				return domain.ErrConcurrentUpdate
			}
		} else {
			rows, err := s.reservationRepo.TouchPending(ctx, tx, reservation.ID, now)
			if err != nil {
				return err
			}
			if rows == 0 {
				return domain.ErrConcurrentUpdate
			}
		}

		result = domain.ApplyResult{
			Applied:         true,
			ReservationID:   reservation.ID,
			PromotionCode:   promo.Code,
			UsedMonths:      record.UsedMonths,
			LedgerExhausted: record.IsExhausted,
		}
		metrics.DiscountsApplied.WithLabelValues(string(promo.DiscountType)).Inc()

		s.log.Info("promotion applied to payment",
			zap.String("user_id", req.UserID.String()),
			zap.String("promotion_code", promo.Code),
			zap.String("business_number", user.BusinessNumber),
			zap.Int("used_months", record.UsedMonths),
			zap.Bool("exhausted", record.IsExhausted),
		)
		return nil
	})
	if err != nil {
		return domain.ApplyResult{}, err
	}
	return result, nil
}

// activeReservation loads the user's oldest consumable reservation together
// with its promotion. Reservations older than the configured TTL are
// skipped, not mutated; a zero TTL means reservations never lapse.
func (s *Service) activeReservation(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*reservationdomain.Reservation, *promotiondomain.Promotion, error) {
	var cutoff time.Time
	if s.reservationTTL > 0 {
		cutoff = s.clock.Now().Add(-s.reservationTTL)
	}

	reservation, err := s.reservationRepo.FindOldestPending(ctx, tx, userID, cutoff)
	if err != nil {
		return nil, nil, err
	}
	if reservation == nil {
		return nil, nil, nil
	}

	promo, err := s.promotionRepo.FindByID(ctx, tx, reservation.PromotionID)
	if err != nil {
		return nil, nil, err
	}
	if promo == nil {
		return nil, nil, promotiondomain.ErrNotFound
	}
	return reservation, promo, nil
}

// DiscountedAmount computes the charge for one cycle under a discount.
func DiscountedAmount(basePrice int64, kind promotiondomain.DiscountType, value int64) int64 {
	switch kind {
	case promotiondomain.DiscountFree:
		return 0
	case promotiondomain.DiscountPercent:
		return int64(math.Round(float64(basePrice) * (1 - float64(value)/100)))
	case promotiondomain.DiscountAmount:
		if value >= basePrice {
			return 0
		}
		return basePrice - value
	default:
		return basePrice
	}
}
