package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/martagiraldo/promptstash-backend/internal/users"
	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
	"github.com/martagiraldo/promptstash-backend/pkg/logger"
)

const expirySweepBatchSize = 250

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type tiersRepository interface {
	FindByName(ctx context.Context, name string) (*models.MembershipTier, error)
	FindDefault(ctx context.Context) (*models.MembershipTier, error)
}

// ServiceParams groups dependencies for the subscription lifecycle manager.
type ServiceParams struct {
	Repo      Repository
	Users     users.Repository
	Tiers     tiersRepository
	Tx        txRunner
	Logger    *logger.Logger
	TrialDays int
	Now       func() time.Time
}

// Service owns the subscription lifecycle: plan assignment, payment renewal
// and the expiry sweep. Every transition that touches subscription rows and
// the user's tier pointer runs inside one transaction.
type Service struct {
	repo      Repository
	users     users.Repository
	tiers     tiersRepository
	tx        txRunner
	logg      *logger.Logger
	trialDays int
	now       func() time.Time
}

// NewService builds a subscription lifecycle service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Users == nil {
		return nil, errors.New("users repo is required")
	}
	if params.Tiers == nil {
		return nil, errors.New("tiers repo is required")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	trialDays := params.TrialDays
	if trialDays <= 0 {
		trialDays = 7
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      params.Repo,
		users:     params.Users,
		tiers:     params.Tiers,
		tx:        params.Tx,
		logg:      params.Logger,
		trialDays: trialDays,
		now:       now,
	}, nil
}

// AssignPlan switches the user onto the named tier. One transaction locks the
// user row, closes out any active/trial rows, inserts the new row and repoints
// users.current_tier_id, so concurrent transitions for the same user serialize
// and at most one live row ever exists.
func (s *Service) AssignPlan(ctx context.Context, input AssignPlanInput) (*AssignPlanResult, error) {
	if !input.BillingCycle.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing cycle").
			WithDetails(map[string]any{"billing_cycle": input.BillingCycle.String()})
	}

	tier, err := s.tiers.FindByName(ctx, input.TierName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if tier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown tier name").
			WithDetails(map[string]any{"name": input.TierName})
	}

	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	now := s.now().UTC()
	sub := s.buildSubscription(user.ID, tier.ID, input, now)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// The row lock serializes concurrent transitions for one user.
		// Without it two racing assignments both pass the close-out and
		// leave two live rows.
		locked, err := s.users.WithTx(tx).LockByID(ctx, user.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return errors.New("user no longer exists")
		}
		if _, err := s.repo.WithTx(tx).CloseOutCurrent(ctx, user.ID, now); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, sub); err != nil {
			return err
		}
		return s.users.WithTx(tx).SetCurrentTier(ctx, user.ID, tier.ID)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign plan")
	}

	if s.logg != nil {
		lctx := s.logg.WithFields(ctx, map[string]any{
			"user_id":       user.ID.String(),
			"tier":          tier.Name,
			"billing_cycle": input.BillingCycle.String(),
		})
		s.logg.Info(lctx, "plan assigned")
	}
	return &AssignPlanResult{Subscription: sub, Tier: tier}, nil
}

// HandlePaymentSuccess applies a confirmed payment from the billing webhook.
// Trials never come through here; a trial cycle is rejected outright.
func (s *Service) HandlePaymentSuccess(ctx context.Context, input AssignPlanInput) (*AssignPlanResult, error) {
	if !input.BillingCycle.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment requires a paid billing cycle").
			WithDetails(map[string]any{"billing_cycle": input.BillingCycle.String()})
	}
	return s.AssignPlan(ctx, input)
}

// AdminAssignPlan lets an admin move another user onto a tier, typically for
// support comps. Admins cannot change their own plan through this path.
func (s *Service) AdminAssignPlan(ctx context.Context, actorID uuid.UUID, input AssignPlanInput) (*AssignPlanResult, error) {
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load actor")
	}
	if actor == nil || !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if actorID == input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admins cannot assign their own plan")
	}
	return s.AssignPlan(ctx, input)
}

// GetActive returns the user's current active/trial subscription, or nil when
// the user is on implicit free defaults.
func (s *Service) GetActive(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	sub, err := s.repo.FindCurrent(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return sub, nil
}

// ListForUser returns the user's full subscription history, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error) {
	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	return subs, nil
}

// ExpireOverdue sweeps stale active/trial rows whose expires_at has passed,
// downgrading each owner to the default tier. Each user is handled in its own
// transaction so one failure never blocks the rest of the batch; errors are
// accumulated and returned alongside the number of users downgraded.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	defaultTier, err := s.tiers.FindDefault(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default tier")
	}
	if defaultTier == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "no default tier configured")
	}

	now := s.now().UTC()
	expired := 0
	var errs error

	for {
		overdue, err := s.repo.ListOverdue(ctx, now, expirySweepBatchSize)
		if err != nil {
			return expired, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue subscriptions"))
		}
		if len(overdue) == 0 {
			break
		}

		progressed := false
		seen := make(map[uuid.UUID]struct{}, len(overdue))
		for _, sub := range overdue {
			if _, ok := seen[sub.UserID]; ok {
				continue
			}
			seen[sub.UserID] = struct{}{}

			if err := s.expireUser(ctx, sub.UserID, defaultTier.ID, now); err != nil {
				errs = multierr.Append(errs, err)
				if s.logg != nil {
					s.logg.Error(s.logg.WithUserID(ctx, sub.UserID.String()), "subscription expiry failed", err)
				}
				continue
			}
			progressed = true
			expired++
		}
		if !progressed {
			break
		}
	}

	if s.logg != nil && expired > 0 {
		s.logg.Info(s.logg.WithField(ctx, "expired_users", expired), "expiry sweep complete")
	}
	return expired, errs
}

func (s *Service) expireUser(ctx context.Context, userID, defaultTierID uuid.UUID, now time.Time) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// Same lock as AssignPlan, so a sweep racing an assignment for the
		// same user cannot interleave with its close-out.
		locked, err := s.users.WithTx(tx).LockByID(ctx, userID)
		if err != nil {
			return err
		}
		if _, err := s.repo.WithTx(tx).CloseOutCurrent(ctx, userID, now); err != nil {
			return err
		}
		if locked == nil {
			// Orphaned rows still get closed out; there is no tier pointer
			// left to reset.
			return nil
		}
		return s.users.WithTx(tx).SetCurrentTier(ctx, userID, defaultTierID)
	})
}

func (s *Service) buildSubscription(userID, tierID uuid.UUID, input AssignPlanInput, now time.Time) *models.UserSubscription {
	expiresAt := input.BillingCycle.ExpiryFrom(now, s.trialDays)
	sub := &models.UserSubscription{
		ID:           uuid.New(),
		UserID:       userID,
		TierID:       tierID,
		Status:       enums.SubscriptionStatusActive,
		BillingCycle: input.BillingCycle,
		StartedAt:    now,
		ExpiresAt:    expiresAt,
		Metadata:     input.Metadata,
	}
	if input.BillingCycle == enums.BillingCycleTrial {
		sub.Status = enums.SubscriptionStatusTrial
		return sub
	}
	paymentAt := now
	sub.AutoRenew = true
	sub.LastPaymentAt = &paymentAt
	sub.NextPaymentAt = &expiresAt
	return sub
}
