package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
)

// Repository handles subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.UserSubscription) error
	FindCurrent(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error)
	CloseOutCurrent(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]models.UserSubscription, error)
	CountExpiringSoon(ctx context.Context, from, until time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.UserSubscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindCurrent(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, enums.CurrentSubscriptionStatuses).
		Order("started_at DESC").
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// CloseOutCurrent expires every active/trial row for the user. Both plan
// assignment and the expiry sweeper run this same step, always inside the
// caller's transaction.
func (r *repository) CloseOutCurrent(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("user_id = ? AND status IN ?", userID, enums.CurrentSubscriptionStatuses).
		Updates(map[string]any{
			"status":       enums.SubscriptionStatusExpired,
			"auto_renew":   false,
			"cancelled_at": now,
			"updated_at":   now,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]models.UserSubscription, error) {
	if limit <= 0 {
		limit = 250
	}
	var subs []models.UserSubscription
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?", enums.CurrentSubscriptionStatuses, asOf).
		Order("expires_at ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) CountExpiringSoon(ctx context.Context, from, until time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("status IN ? AND expires_at > ? AND expires_at <= ?", enums.CurrentSubscriptionStatuses, from, until).
		Count(&count).Error
	return count, err
}
