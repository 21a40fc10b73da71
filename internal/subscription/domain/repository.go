package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// FindActiveByUserID returns nil when the user has no subscription in
	// active status. Absent subscription data means "not auto-billing",
	// never an error.
	FindActiveByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
}
