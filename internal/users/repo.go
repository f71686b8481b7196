package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
)

// TierCount is one bucket of the users-per-tier distribution. TierID is nil
// for users that never had a plan assigned; callers fold those into the
// default tier.
type TierCount struct {
	TierID *uuid.UUID
	Users  int64
}

// Repository handles user persistence for the entitlement engine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetCurrentTier(ctx context.Context, userID, tierID uuid.UUID) error
	CountAll(ctx context.Context) (int64, error)
	CountByCurrentTier(ctx context.Context) ([]TierCount, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a user repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// LockByID fetches the user row under FOR UPDATE. Every transaction that
// rewrites a user's subscription rows must take this lock first, so plan
// transitions for one user are a critical section. Only call inside a
// transaction.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) SetCurrentTier(ctx context.Context, userID, tierID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"current_tier_id": tierID,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Count(&count).Error
	return count, err
}

func (r *repository) CountByCurrentTier(ctx context.Context) ([]TierCount, error) {
	var rows []TierCount
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("current_tier_id AS tier_id, COUNT(*) AS users").
		Group("current_tier_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
