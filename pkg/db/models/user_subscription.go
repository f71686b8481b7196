package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/pkg/enums"
)

// UserSubscription is one row of subscription history plus billing metadata.
// At most one row per user is ever in an active/trial status; the lifecycle
// manager enforces that transactionally.
type UserSubscription struct {
	ID            uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	TierID        uuid.UUID                `gorm:"column:tier_id;type:uuid;not null"`
	Status        enums.SubscriptionStatus `gorm:"column:status;not null"`
	BillingCycle  enums.BillingCycle       `gorm:"column:billing_cycle;not null"`
	StartedAt     time.Time                `gorm:"column:started_at;not null"`
	ExpiresAt     time.Time                `gorm:"column:expires_at;not null"`
	CancelledAt   *time.Time               `gorm:"column:cancelled_at"`
	AutoRenew     bool                     `gorm:"column:auto_renew;not null;default:false"`
	LastPaymentAt *time.Time               `gorm:"column:last_payment_at"`
	NextPaymentAt *time.Time               `gorm:"column:next_payment_at"`
	Metadata      json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
