package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/internal/usage"
	"github.com/martagiraldo/promptstash-backend/internal/users"
	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
)

var analyticsNow = time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

type fakeUsageReader struct {
	byPeriod map[string]*usage.SystemStats
	rows     []usage.ApproachingLimitRow
}

func (f *fakeUsageReader) GetSystemUsageStats(ctx context.Context, period string) (*usage.SystemStats, error) {
	if stats, ok := f.byPeriod[period]; ok {
		return stats, nil
	}
	return &usage.SystemStats{Period: period, Stats: map[enums.UsageMetric]usage.SystemMetricStats{}}, nil
}

func (f *fakeUsageReader) GetUsersApproachingLimits(ctx context.Context, thresholdPercent float64) ([]usage.ApproachingLimitRow, error) {
	return f.rows, nil
}

type fakeUsersReader struct {
	total  int64
	counts []users.TierCount
}

func (f *fakeUsersReader) CountAll(ctx context.Context) (int64, error) { return f.total, nil }

func (f *fakeUsersReader) CountByCurrentTier(ctx context.Context) ([]users.TierCount, error) {
	return f.counts, nil
}

type fakeTiersReader struct {
	tiers []models.MembershipTier
}

func (f *fakeTiersReader) List(ctx context.Context) ([]models.MembershipTier, error) {
	return f.tiers, nil
}

type fakeSubsReader struct {
	expiring int64
}

func (f *fakeSubsReader) CountExpiringSoon(ctx context.Context, from, until time.Time) (int64, error) {
	return f.expiring, nil
}

func statsFor(period string, totals map[enums.UsageMetric]int64) *usage.SystemStats {
	stats := &usage.SystemStats{Period: period, Stats: map[enums.UsageMetric]usage.SystemMetricStats{}}
	for metric, total := range totals {
		stats.Stats[metric] = usage.SystemMetricStats{TotalUsage: total}
	}
	return stats
}

func newAnalyticsService(t *testing.T, usageR *fakeUsageReader, usersR *fakeUsersReader, tiersR *fakeTiersReader, subsR *fakeSubsReader) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Usage:         usageR,
		Users:         usersR,
		Tiers:         tiersR,
		Subscriptions: subsR,
		Now:           func() time.Time { return analyticsNow },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestGetOverviewAssemblesEverything(t *testing.T) {
	free := models.MembershipTier{ID: uuid.New(), Name: "free", DisplayName: "Free", IsDefault: true}
	premium := models.MembershipTier{ID: uuid.New(), Name: "premium", DisplayName: "Premium"}

	usageR := &fakeUsageReader{byPeriod: map[string]*usage.SystemStats{
		"2026-08": statsFor("2026-08", map[enums.UsageMetric]int64{
			enums.MetricPromptCreation: 150,
			enums.MetricAIGeneration:   40,
		}),
		"2026-07": statsFor("2026-07", map[enums.UsageMetric]int64{
			enums.MetricPromptCreation: 100,
			enums.MetricAIGeneration:   80,
		}),
	}}
	usersR := &fakeUsersReader{total: 10, counts: []users.TierCount{
		{TierID: &free.ID, Users: 5},
		{TierID: &premium.ID, Users: 2},
		{TierID: nil, Users: 3},
	}}

	svc := newAnalyticsService(t, usageR, usersR,
		&fakeTiersReader{tiers: []models.MembershipTier{free, premium}},
		&fakeSubsReader{expiring: 4})

	overview, err := svc.GetOverview(context.Background())
	if err != nil {
		t.Fatalf("GetOverview: %v", err)
	}

	if overview.Period != "2026-08" {
		t.Fatalf("expected period 2026-08, got %q", overview.Period)
	}
	if overview.TotalUsers != 10 {
		t.Fatalf("expected 10 users, got %d", overview.TotalUsers)
	}
	if overview.ExpiringSoon != 4 {
		t.Fatalf("expected 4 expiring, got %d", overview.ExpiringSoon)
	}

	trends := map[enums.UsageMetric]MetricTrend{}
	for _, trend := range overview.Trends {
		trends[trend.Metric] = trend
	}
	prompts := trends[enums.MetricPromptCreation]
	if prompts.ChangePercent != 50 || prompts.Direction != TrendUp {
		t.Fatalf("100->150 should be +50%% up, got %+v", prompts)
	}
	ai := trends[enums.MetricAIGeneration]
	if ai.ChangePercent != -50 || ai.Direction != TrendDown {
		t.Fatalf("80->40 should be -50%% down, got %+v", ai)
	}
	categories := trends[enums.MetricCategoryCreation]
	if categories.ChangePercent != 0 || categories.Direction != TrendSame {
		t.Fatalf("0->0 should be flat, got %+v", categories)
	}

	if len(overview.TierDistribution) != 2 {
		t.Fatalf("expected 2 tier buckets, got %d", len(overview.TierDistribution))
	}
	// Untiered users fold into the default bucket: 5 + 3 of 10.
	if overview.TierDistribution[0].TierName != "free" || overview.TierDistribution[0].Users != 8 {
		t.Fatalf("expected free bucket with 8 users, got %+v", overview.TierDistribution[0])
	}
	if overview.TierDistribution[0].Percentage != 80 {
		t.Fatalf("expected 80%%, got %v", overview.TierDistribution[0].Percentage)
	}
}

func TestBuildTrendsFromZeroBaseline(t *testing.T) {
	current := statsFor("2026-08", map[enums.UsageMetric]int64{enums.MetricNoteCreation: 30})
	previous := statsFor("2026-07", nil)

	trends := buildTrends(current, previous)
	byMetric := map[enums.UsageMetric]MetricTrend{}
	for _, trend := range trends {
		byMetric[trend.Metric] = trend
	}

	notes := byMetric[enums.MetricNoteCreation]
	if notes.ChangePercent != 100 || notes.Direction != TrendUp {
		t.Fatalf("0->30 reads as +100%% up, got %+v", notes)
	}
}

func TestTierDistributionWithNoUsers(t *testing.T) {
	free := models.MembershipTier{ID: uuid.New(), Name: "free", DisplayName: "Free", IsDefault: true}
	svc := newAnalyticsService(t,
		&fakeUsageReader{},
		&fakeUsersReader{},
		&fakeTiersReader{tiers: []models.MembershipTier{free}},
		&fakeSubsReader{})

	rows, err := svc.tierDistribution(context.Background())
	if err != nil {
		t.Fatalf("tierDistribution: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(rows))
	}
	if rows[0].Users != 0 || rows[0].Percentage != 0 {
		t.Fatalf("empty platform must not divide by zero, got %+v", rows[0])
	}
}
