package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/internal/clock"
	"github.com/pillstack/backoffice/internal/promotion/catalog/repository"
	"github.com/pillstack/backoffice/internal/promotion/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  repository.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  repository.Repository
}

func New(p Params) domain.Catalog {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("promotion.catalog"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListPromotionRequest) (domain.ListPromotionResponse, error) {
	items, err := s.repo.List(ctx, s.db, req.ActiveOnly, req.FirstPaymentOnly)
	if err != nil {
		return domain.ListPromotionResponse{}, err
	}

	promos := make([]domain.Promotion, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		promos = append(promos, *item)
	}
	return domain.ListPromotionResponse{Promotions: promos}, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Promotion, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Promotion{}, err
	}
	if item == nil {
		return domain.Promotion{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (domain.Promotion, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Promotion{}, domain.ErrNotFound
	}
	item, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Promotion{}, err
	}
	if item == nil {
		return domain.Promotion{}, domain.ErrNotFound
	}
	return *item, nil
}

// Peek validates the code and returns the bound promotion without spending
// a use.
func (s *Service) Peek(ctx context.Context, code string) (domain.Promotion, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Promotion{}, domain.ErrCodeNotFound
	}

	now := s.clock.Now()

	ref, err := s.repo.FindReferralByCode(ctx, s.db, code)
	if err != nil {
		return domain.Promotion{}, err
	}
	if ref == nil {
		return domain.Promotion{}, domain.ErrCodeNotFound
	}
	if reject := classifyReferral(*ref, now); reject != nil {
		return domain.Promotion{}, reject
	}

	promo, err := s.repo.FindByID(ctx, s.db, ref.PromotionID)
	if err != nil {
		return domain.Promotion{}, err
	}
	if promo == nil {
		return domain.Promotion{}, domain.ErrNotFound
	}
	if !promo.Active || !promo.WithinWindow(now) {
		return domain.Promotion{}, domain.ErrInactive
	}
	return *promo, nil
}

// Resolve redeems a referral code. The used_count increment is a conditional
// update so two concurrent redemptions of the last remaining use cannot both
// succeed; the loser is classified against the row state it observed.
func (s *Service) Resolve(ctx context.Context, code string) (domain.Promotion, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Promotion{}, domain.ErrCodeNotFound
	}

	now := s.clock.Now()

	ref, err := s.repo.FindReferralByCode(ctx, s.db, code)
	if err != nil {
		return domain.Promotion{}, err
	}
	if ref == nil {
		return domain.Promotion{}, domain.ErrCodeNotFound
	}

	if reject := classifyReferral(*ref, now); reject != nil {
		return domain.Promotion{}, reject
	}

	rows, err := s.repo.ConsumeReferral(ctx, s.db, code, now)
	if err != nil {
		return domain.Promotion{}, err
	}
	if rows == 0 {
		// Lost a race; re-read to report the precise reason.
		ref, err = s.repo.FindReferralByCode(ctx, s.db, code)
		if err != nil {
			return domain.Promotion{}, err
		}
		if ref == nil {
			return domain.Promotion{}, domain.ErrCodeNotFound
		}
		if reject := classifyReferral(*ref, now); reject != nil {
			return domain.Promotion{}, reject
		}
		return domain.Promotion{}, domain.ErrCodeExhausted
	}

	promo, err := s.repo.FindByID(ctx, s.db, ref.PromotionID)
	if err != nil {
		return domain.Promotion{}, err
	}
	if promo == nil {
		return domain.Promotion{}, domain.ErrNotFound
	}
	if !promo.Active || !promo.WithinWindow(now) {
		return domain.Promotion{}, domain.ErrInactive
	}

	s.log.Info("referral code redeemed",
		zap.String("code", code),
		zap.String("promotion_code", promo.Code),
	)
	return *promo, nil
}

func classifyReferral(ref domain.ReferralCode, now time.Time) error {
	if !ref.Active {
		return domain.ErrCodeInactive
	}
	if ref.ExpiresAt != nil && !ref.ExpiresAt.After(now) {
		return domain.ErrCodeExpired
	}
	if ref.MaxUses > 0 && ref.UsedCount >= ref.MaxUses {
		return domain.ErrCodeExhausted
	}
	return nil
}
