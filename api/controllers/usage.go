package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/api/middleware"
	"github.com/martagiraldo/promptstash-backend/api/responses"
	"github.com/martagiraldo/promptstash-backend/api/validators"
	"github.com/martagiraldo/promptstash-backend/internal/usage"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
	"github.com/martagiraldo/promptstash-backend/pkg/logger"
)

// UsageService is the quota enforcer surface the usage handlers need.
type UsageService interface {
	CanPerformAction(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, requested int64) (*usage.Decision, error)
	TrackUsage(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, count int64) error
	ConsumeAction(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, count int64) (*usage.Decision, error)
	GetUserUsageSummary(ctx context.Context, userID uuid.UUID) (*usage.Summary, error)
}

type usageCountRequest struct {
	Count int64 `json:"count" validate:"omitempty,min=1,max=1000"`
}

// UsageConsume admits and records one metered action atomically. A denied
// request still answers 200; allowed=false plus the limit is the contract the
// content services build their upgrade prompts on.
func UsageConsume(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
			return
		}

		metric, err := enums.ParseUsageMetric(chi.URLParam(r, "metric"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown usage metric").
				WithDetails(map[string]any{"metric": chi.URLParam(r, "metric")}))
			return
		}

		count, err := decodeCount(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		decision, err := svc.ConsumeAction(ctx, userID, metric, count)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, decision)
	}
}

// UsageCheck is the read-only admission probe. The answer may be stale by the
// time the caller acts; consume is the authoritative path.
func UsageCheck(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
			return
		}

		metric, err := enums.ParseUsageMetric(chi.URLParam(r, "metric"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown usage metric").
				WithDetails(map[string]any{"metric": chi.URLParam(r, "metric")}))
			return
		}

		count, err := validators.ParseQueryInt(r, "count", 1, 1, 1000)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		decision, err := svc.CanPerformAction(ctx, userID, metric, int64(count))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, decision)
	}
}

// UsageTrack records consumption for actions already performed, without an
// admission check. Used by backfill paths and unmetered surfaces.
func UsageTrack(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
			return
		}

		metric, err := enums.ParseUsageMetric(chi.URLParam(r, "metric"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown usage metric").
				WithDetails(map[string]any{"metric": chi.URLParam(r, "metric")}))
			return
		}

		count, err := decodeCount(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.TrackUsage(ctx, userID, metric, count); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "recorded"})
	}
}

// UsageSummary returns the caller's per-metric snapshot.
func UsageSummary(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
			return
		}

		summary, err := svc.GetUserUsageSummary(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// decodeCount reads the optional {"count": n} body; an empty body means one.
func decodeCount(r *http.Request) (int64, error) {
	if r.ContentLength == 0 {
		return 1, nil
	}
	var req usageCountRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		return 0, err
	}
	if req.Count == 0 {
		return 1, nil
	}
	return req.Count, nil
}
