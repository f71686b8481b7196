package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/internal/usage"
	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
)

func TestExportCSVSystemUsage(t *testing.T) {
	usageR := &fakeUsageReader{byPeriod: map[string]*usage.SystemStats{
		"": statsFor("2026-08", map[enums.UsageMetric]int64{
			enums.MetricPromptCreation: 42,
		}),
	}}
	svc := newAnalyticsService(t, usageR, &fakeUsersReader{}, &fakeTiersReader{}, &fakeSubsReader{})

	var buf bytes.Buffer
	if err := svc.ExportCSV(context.Background(), ReportSystemUsage, &buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(records) != len(enums.AllUsageMetrics())+1 {
		t.Fatalf("expected header plus one row per metric, got %d rows", len(records))
	}
	if records[0][0] != "period" || records[0][1] != "metric" {
		t.Fatalf("unexpected header %v", records[0])
	}
	// First data row follows registry order: prompt_creation.
	if records[1][1] != "prompt_creation" || records[1][2] != "42" {
		t.Fatalf("unexpected first row %v", records[1])
	}
}

func TestExportCSVApproachingLimits(t *testing.T) {
	userID := uuid.New()
	usageR := &fakeUsageReader{rows: []usage.ApproachingLimitRow{{
		UserID:     userID,
		Email:      "near@example.com",
		Metric:     enums.MetricAIGeneration,
		UsageCount: 9,
		UsageLimit: 10,
		Percentage: 90,
	}}}
	svc := newAnalyticsService(t, usageR, &fakeUsersReader{}, &fakeTiersReader{}, &fakeSubsReader{})

	var buf bytes.Buffer
	if err := svc.ExportCSV(context.Background(), ReportApproachingLimits, &buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(records))
	}
	row := records[1]
	if row[0] != userID.String() || row[1] != "near@example.com" || row[2] != "ai_generation" || row[5] != "90.0" {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestExportCSVTierDistribution(t *testing.T) {
	free := models.MembershipTier{ID: uuid.New(), Name: "free", DisplayName: "Free", IsDefault: true}
	svc := newAnalyticsService(t,
		&fakeUsageReader{},
		&fakeUsersReader{},
		&fakeTiersReader{tiers: []models.MembershipTier{free}},
		&fakeSubsReader{})

	var buf bytes.Buffer
	if err := svc.ExportCSV(context.Background(), ReportTierDistribution, &buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(records) != 2 || records[1][0] != "free" {
		t.Fatalf("unexpected records %v", records)
	}
}

func TestExportCSVUnknownReport(t *testing.T) {
	svc := newAnalyticsService(t, &fakeUsageReader{}, &fakeUsersReader{}, &fakeTiersReader{}, &fakeSubsReader{})

	var buf bytes.Buffer
	err := svc.ExportCSV(context.Background(), Report("nope"), &buf)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseReport(t *testing.T) {
	for _, valid := range []string{"system_usage", "approaching_limits", "tier_distribution"} {
		if _, err := ParseReport(valid); err != nil {
			t.Fatalf("ParseReport(%q): %v", valid, err)
		}
	}
	if _, err := ParseReport("everything"); err == nil {
		t.Fatal("expected error for unknown report")
	}
}
