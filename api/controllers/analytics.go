package controllers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/martagiraldo/promptstash-backend/api/responses"
	"github.com/martagiraldo/promptstash-backend/api/validators"
	"github.com/martagiraldo/promptstash-backend/internal/analytics"
	"github.com/martagiraldo/promptstash-backend/internal/usage"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
	"github.com/martagiraldo/promptstash-backend/pkg/logger"
)

// AnalyticsService is the aggregator surface the admin handlers need.
type AnalyticsService interface {
	GetOverview(ctx context.Context) (*analytics.Overview, error)
	GetApproachingLimits(ctx context.Context, thresholdPercent float64) ([]usage.ApproachingLimitRow, error)
	ExportCSV(ctx context.Context, report analytics.Report, w io.Writer) error
}

// AnalyticsOverview serves the admin dashboard payload.
func AnalyticsOverview(svc AnalyticsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		overview, err := svc.GetOverview(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, overview)
	}
}

// AnalyticsApproachingLimits lists users at or over the threshold on any
// monthly metric. Defaults to 75 percent.
func AnalyticsApproachingLimits(svc AnalyticsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		threshold, err := validators.ParseQueryInt(r, "threshold", 75, 1, 100)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, err := svc.GetApproachingLimits(ctx, float64(threshold))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if rows == nil {
			rows = []usage.ApproachingLimitRow{}
		}
		responses.WriteSuccess(w, rows)
	}
}

// AnalyticsExport streams the named report as a CSV attachment.
func AnalyticsExport(svc AnalyticsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw := validators.ParseQueryString(r, "report", string(analytics.ReportSystemUsage))
		report, err := analytics.ParseReport(raw)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown report").
				WithDetails(map[string]any{"report": raw}))
			return
		}

		filename := fmt.Sprintf("%s_%s.csv", report, time.Now().UTC().Format("2006-01-02"))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

		if err := svc.ExportCSV(ctx, report, w); err != nil {
			// Headers may already be written; log instead of re-writing the body.
			if logg != nil {
				logg.Error(ctx, "csv export failed", err)
			}
		}
	}
}
