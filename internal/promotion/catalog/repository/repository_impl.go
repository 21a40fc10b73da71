package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/internal/promotion/domain"
	"gorm.io/gorm"
)

// Repository is the persistence surface behind the promotion catalog.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Promotion, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Promotion, error)
	List(ctx context.Context, db *gorm.DB, activeOnly, firstPaymentOnly bool) ([]*domain.Promotion, error)
	FindReferralByCode(ctx context.Context, db *gorm.DB, code string) (*domain.ReferralCode, error)
	// ConsumeReferral increments used_count only while the code is active,
	// unexpired, and under max_uses at write time. Returns the number of
	// rows updated so callers can tell a lost race from success.
	ConsumeReferral(ctx context.Context, db *gorm.DB, code string, now time.Time) (int64, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Promotion, error) {
	var promo domain.Promotion
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&promo).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Promotion, error) {
	var promo domain.Promotion
	err := db.WithContext(ctx).
		Where("code = ?", code).
		First(&promo).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly, firstPaymentOnly bool) ([]*domain.Promotion, error) {
	var promos []*domain.Promotion
	stmt := db.WithContext(ctx).Model(&domain.Promotion{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if firstPaymentOnly {
		stmt = stmt.Where("first_payment_only = ?", true)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&promos).Error
	if err != nil {
		return nil, err
	}
	return promos, nil
}

func (r *repo) FindReferralByCode(ctx context.Context, db *gorm.DB, code string) (*domain.ReferralCode, error) {
	var ref domain.ReferralCode
	err := db.WithContext(ctx).
		Where("code = ?", code).
		First(&ref).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

func (r *repo) ConsumeReferral(ctx context.Context, db *gorm.DB, code string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE referral_codes
		 SET used_count = used_count + 1, updated_at = ?
		 WHERE code = ?
		   AND is_active = ?
		   AND (max_uses = 0 OR used_count < max_uses)
		   AND (expires_at IS NULL OR expires_at > ?)`,
		now, code, true, now,
	)
	return res.RowsAffected, res.Error
}
