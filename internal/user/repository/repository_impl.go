package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []*domain.User
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListUserFilter) ([]*domain.User, error) {
	var users []*domain.User
	stmt := db.WithContext(ctx).Model(&domain.User{})
	if !filter.IncludeDeleted {
		stmt = stmt.Where("is_deleted = ?", false)
	}
	if filter.BusinessNumber != "" {
		stmt = stmt.Where("business_number = ?", filter.BusinessNumber)
	}
	if filter.PharmacyName != "" {
		stmt = stmt.Where("pharmacy_name = ?", filter.PharmacyName)
	}
	err := stmt.
		Order("created_at asc, id asc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
