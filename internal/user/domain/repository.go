package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListUserFilter struct {
	BusinessNumber string
	PharmacyName   string
	IncludeDeleted bool
}

// Repository is the user directory consumed by the promotion engine.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*User, error)
	List(ctx context.Context, db *gorm.DB, filter ListUserFilter) ([]*User, error)
}

var ErrNotFound = errors.New("user_not_found")
