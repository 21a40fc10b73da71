package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/internal/usagehistory/domain"
	"github.com/pillstack/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) domain.Ledger {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usagehistory.ledger"),
		genID: p.GenID,
	}
}

func (s *Service) RecordUsage(ctx context.Context, conn *gorm.DB, businessNumber, promotionCode string, budget int, now time.Time) (*domain.Record, error) {
	if budget < 1 {
		budget = 1
	}

	res := conn.WithContext(ctx).Exec(
		`UPDATE promotion_usage_history
		 SET used_months = used_months + 1,
		     is_exhausted = (used_months + 1 >= ?),
		     last_applied_at = ?,
		     updated_at = ?
		 WHERE business_number = ? AND promotion_code = ?`,
		budget, now, now, businessNumber, promotionCode,
	)
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		record := domain.Record{
			ID:             s.genID.Generate(),
			BusinessNumber: businessNumber,
			PromotionCode:  promotionCode,
			UsedMonths:     1,
			IsExhausted:    budget <= 1,
			LastAppliedAt:  &now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		err := conn.WithContext(ctx).Create(&record).Error
		if err == nil {
			return &record, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Raced with another writer creating the row; fall through to the
		// increment path.
		res = conn.WithContext(ctx).Exec(
			`UPDATE promotion_usage_history
			 SET used_months = used_months + 1,
			     is_exhausted = (used_months + 1 >= ?),
			     last_applied_at = ?,
			     updated_at = ?
			 WHERE business_number = ? AND promotion_code = ?`,
			budget, now, now, businessNumber, promotionCode,
		)
		if res.Error != nil {
			return nil, res.Error
		}
	}

	return s.Find(ctx, conn, businessNumber, promotionCode)
}

func (s *Service) IsExhausted(ctx context.Context, businessNumber, promotionCode string) (bool, error) {
	record, err := s.Find(ctx, s.db, businessNumber, promotionCode)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	return record.IsExhausted, nil
}

func (s *Service) Find(ctx context.Context, conn *gorm.DB, businessNumber, promotionCode string) (*domain.Record, error) {
	var record domain.Record
	err := conn.WithContext(ctx).
		Where("business_number = ? AND promotion_code = ?", businessNumber, promotionCode).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) ListByBusinessNumber(ctx context.Context, businessNumber string) ([]domain.Record, error) {
	var records []domain.Record
	err := s.db.WithContext(ctx).
		Where("business_number = ?", businessNumber).
		Order("last_applied_at desc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
