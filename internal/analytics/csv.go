package analytics

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/martagiraldo/promptstash-backend/pkg/enums"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
)

// Report names a CSV export shape.
type Report string

const (
	ReportSystemUsage       Report = "system_usage"
	ReportApproachingLimits Report = "approaching_limits"
	ReportTierDistribution  Report = "tier_distribution"
)

const approachingLimitsExportThreshold = 75.0

// ExportCSV streams the named report to w. Rows follow the registry's stable
// metric order so repeated exports diff cleanly.
func (s *Service) ExportCSV(ctx context.Context, report Report, w io.Writer) error {
	switch report {
	case ReportSystemUsage:
		return s.exportSystemUsage(ctx, w)
	case ReportApproachingLimits:
		return s.exportApproachingLimits(ctx, w)
	case ReportTierDistribution:
		return s.exportTierDistribution(ctx, w)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown report").
			WithDetails(map[string]any{"report": string(report)})
	}
}

func (s *Service) exportSystemUsage(ctx context.Context, w io.Writer) error {
	stats, err := s.usage.GetSystemUsageStats(ctx, "")
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"period", "metric", "total_usage", "active_users", "avg_usage_per_user", "max_usage"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, metric := range enums.AllUsageMetrics() {
		entry := stats.Stats[metric]
		record := []string{
			stats.Period,
			metric.String(),
			strconv.FormatInt(entry.TotalUsage, 10),
			strconv.FormatInt(entry.ActiveUsers, 10),
			strconv.FormatFloat(entry.AvgUsagePerUser, 'f', 1, 64),
			strconv.FormatInt(entry.MaxUsage, 10),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s *Service) exportApproachingLimits(ctx context.Context, w io.Writer) error {
	rows, err := s.usage.GetUsersApproachingLimits(ctx, approachingLimitsExportThreshold)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"user_id", "email", "usage_type", "usage_count", "usage_limit", "percentage"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.UserID.String(),
			row.Email,
			row.Metric.String(),
			strconv.FormatInt(row.UsageCount, 10),
			strconv.FormatInt(row.UsageLimit, 10),
			strconv.FormatFloat(row.Percentage, 'f', 1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s *Service) exportTierDistribution(ctx context.Context, w io.Writer) error {
	rows, err := s.tierDistribution(ctx)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"tier", "display_name", "users", "percentage"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.TierName,
			row.DisplayName,
			strconv.FormatInt(row.Users, 10),
			strconv.FormatFloat(row.Percentage, 'f', 1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ParseReport converts raw query input into a Report.
func ParseReport(value string) (Report, error) {
	switch Report(value) {
	case ReportSystemUsage, ReportApproachingLimits, ReportTierDistribution:
		return Report(value), nil
	}
	return "", fmt.Errorf("invalid report %q", value)
}
