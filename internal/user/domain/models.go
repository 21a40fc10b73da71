package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// User is a pharmacist account. BusinessNumber identifies the legal pharmacy
// entity behind the account; several accounts may share one.
type User struct {
	ID                  snowflake.ID      `gorm:"primaryKey" json:"id"`
	Email               string            `gorm:"not null" json:"email"`
	PharmacyName        string            `gorm:"column:pharmacy_name" json:"pharmacy_name"`
	PharmacistName      string            `gorm:"column:pharmacist_name" json:"pharmacist_name"`
	BusinessNumber      string            `gorm:"column:business_number;index" json:"business_number"`
	IsReturningCustomer bool              `gorm:"not null;default:false" json:"is_returning_customer"`
	IsDeleted           bool              `gorm:"not null;default:false" json:"is_deleted"`
	Metadata            datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string { return "users" }
