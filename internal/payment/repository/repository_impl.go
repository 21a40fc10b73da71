package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Where("id = ?", id).
		Update("processed_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) CountSuccessfulByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("user_id = ? AND status = ?", userID, domain.StatusSuccess).
		Count(&count).Error
	return count, err
}

func (r *repo) FindLatestSuccessByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.StatusSuccess).
		Order("approved_at desc").
		First(&payment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}
