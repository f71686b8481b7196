package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the slice of the identity record the entitlement engine touches.
// CurrentTierID is a denormalized pointer kept transactionally in sync with
// the active/trial subscription row; the quota enforcer reads only this field.
type User struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email         string     `gorm:"type:text;not null;uniqueIndex"`
	FirstName     string     `gorm:"column:first_name;not null"`
	LastName      string     `gorm:"column:last_name;not null"`
	IsActive      bool       `gorm:"column:is_active;not null;default:true"`
	SystemRole    *string    `gorm:"column:system_role"`
	CurrentTierID *uuid.UUID `gorm:"column:current_tier_id;type:uuid"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// IsAdmin reports whether the user holds the admin system role.
func (u User) IsAdmin() bool {
	return u.SystemRole != nil && *u.SystemRole == "admin"
}
