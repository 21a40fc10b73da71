package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindActiveByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.StatusActive).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
