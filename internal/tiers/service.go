package tiers

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
)

// ServiceParams groups dependencies for the tier catalog service.
type ServiceParams struct {
	Repo Repository
}

// Service exposes the tier catalog to the rest of the engine.
type Service struct {
	repo Repository
}

// NewService builds a tier catalog service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// GetByID loads a tier by primary key.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.MembershipTier, error) {
	tier, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if tier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
	}
	return tier, nil
}

// GetByName resolves a tier by its stable key (free, personal, premium).
// An unknown name is a validation failure, never applied partially.
func (s *Service) GetByName(ctx context.Context, name string) (*models.MembershipTier, error) {
	tier, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if tier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown tier name").
			WithDetails(map[string]any{"name": name})
	}
	return tier, nil
}

// Default returns the catalog's default tier (the free tier). Exactly one
// tier carries the default flag; its absence is a deployment fault.
func (s *Service) Default(ctx context.Context) (*models.MembershipTier, error) {
	tier, err := s.repo.FindDefault(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default tier")
	}
	if tier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no default tier configured")
	}
	return tier, nil
}

// List returns every tier in display order.
func (s *Service) List(ctx context.Context) ([]models.MembershipTier, error) {
	tiers, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tiers")
	}
	return tiers, nil
}
