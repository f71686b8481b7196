package tiers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
)

// Repository handles tier catalog persistence. The catalog is reference data
// seeded by migrations; this layer only reads it.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.MembershipTier, error)
	FindByName(ctx context.Context, name string) (*models.MembershipTier, error)
	FindDefault(ctx context.Context) (*models.MembershipTier, error)
	List(ctx context.Context) ([]models.MembershipTier, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a tier repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MembershipTier, error) {
	var tier models.MembershipTier
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tier).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

func (r *repository) FindByName(ctx context.Context, name string) (*models.MembershipTier, error) {
	if name == "" {
		return nil, nil
	}
	var tier models.MembershipTier
	if err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&tier).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

func (r *repository) FindDefault(ctx context.Context) (*models.MembershipTier, error) {
	var tier models.MembershipTier
	if err := r.db.WithContext(ctx).
		Where("is_default = ?", true).
		Order("updated_at DESC").
		First(&tier).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

func (r *repository) List(ctx context.Context) ([]models.MembershipTier, error) {
	var tiers []models.MembershipTier
	if err := r.db.WithContext(ctx).
		Order("price_monthly ASC, name ASC").
		Find(&tiers).Error; err != nil {
		return nil, err
	}
	return tiers, nil
}
