package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/api/middleware"
	"github.com/martagiraldo/promptstash-backend/api/responses"
	"github.com/martagiraldo/promptstash-backend/api/validators"
	"github.com/martagiraldo/promptstash-backend/internal/subscriptions"
	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
	"github.com/martagiraldo/promptstash-backend/pkg/logger"
)

// SubscriptionService is the lifecycle surface the subscription handlers need.
type SubscriptionService interface {
	AssignPlan(ctx context.Context, input subscriptions.AssignPlanInput) (*subscriptions.AssignPlanResult, error)
	HandlePaymentSuccess(ctx context.Context, input subscriptions.AssignPlanInput) (*subscriptions.AssignPlanResult, error)
	AdminAssignPlan(ctx context.Context, actorID uuid.UUID, input subscriptions.AssignPlanInput) (*subscriptions.AssignPlanResult, error)
	GetActive(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error)
}

type assignPlanRequest struct {
	Tier         string `json:"tier" validate:"required"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=trial monthly annual"`
}

// SubscriptionAssign switches the caller onto a tier. Trials come through
// here; paid cycles normally arrive via the payment-success path instead.
func SubscriptionAssign(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
			return
		}

		var req assignPlanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.AssignPlan(ctx, subscriptions.AssignPlanInput{
			UserID:       userID,
			TierName:     req.Tier,
			BillingCycle: enums.BillingCycle(req.BillingCycle),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// SubscriptionPaymentSuccess applies a confirmed payment relayed by the
// billing integration for the calling user.
func SubscriptionPaymentSuccess(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
			return
		}

		var req assignPlanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.HandlePaymentSuccess(ctx, subscriptions.AssignPlanInput{
			UserID:       userID,
			TierName:     req.Tier,
			BillingCycle: enums.BillingCycle(req.BillingCycle),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// SubscriptionCurrent returns the caller's active subscription, if any.
func SubscriptionCurrent(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
			return
		}

		sub, err := svc.GetActive(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

// SubscriptionHistory returns the caller's full subscription history.
func SubscriptionHistory(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
			return
		}

		subs, err := svc.ListForUser(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, subs)
	}
}

// AdminAssignPlan moves another user onto a tier, for support comps and
// manual corrections. Self-assignment through this route is rejected.
func AdminAssignPlan(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
			return
		}

		targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
			return
		}

		var req assignPlanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.AdminAssignPlan(ctx, actorID, subscriptions.AssignPlanInput{
			UserID:       targetID,
			TierName:     req.Tier,
			BillingCycle: enums.BillingCycle(req.BillingCycle),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
