package analytics

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/martagiraldo/promptstash-backend/internal/usage"
	"github.com/martagiraldo/promptstash-backend/internal/users"
	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
)

const expiringSoonWindow = 30 * 24 * time.Hour

type usageReader interface {
	GetSystemUsageStats(ctx context.Context, period string) (*usage.SystemStats, error)
	GetUsersApproachingLimits(ctx context.Context, thresholdPercent float64) ([]usage.ApproachingLimitRow, error)
}

type usersReader interface {
	CountAll(ctx context.Context) (int64, error)
	CountByCurrentTier(ctx context.Context) ([]users.TierCount, error)
}

type tiersReader interface {
	List(ctx context.Context) ([]models.MembershipTier, error)
}

type subscriptionsReader interface {
	CountExpiringSoon(ctx context.Context, from, until time.Time) (int64, error)
}

// ServiceParams groups dependencies for the analytics aggregator.
type ServiceParams struct {
	Usage         usageReader
	Users         usersReader
	Tiers         tiersReader
	Subscriptions subscriptionsReader
	Now           func() time.Time
}

// Service derives admin analytics from the transactional store. Everything is
// computed on read; there is no separate analytics warehouse.
type Service struct {
	usage         usageReader
	users         usersReader
	tiers         tiersReader
	subscriptions subscriptionsReader
	now           func() time.Time
}

// NewService builds an analytics aggregator.
func NewService(params ServiceParams) (*Service, error) {
	if params.Usage == nil {
		return nil, errors.New("usage service is required")
	}
	if params.Users == nil {
		return nil, errors.New("users repo is required")
	}
	if params.Tiers == nil {
		return nil, errors.New("tiers repo is required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscriptions repo is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		usage:         params.Usage,
		users:         params.Users,
		tiers:         params.Tiers,
		subscriptions: params.Subscriptions,
		now:           now,
	}, nil
}

// GetOverview assembles the admin dashboard payload. The independent reads
// fan out concurrently; the first failure cancels the rest.
func (s *Service) GetOverview(ctx context.Context) (*Overview, error) {
	now := s.now().UTC()
	overview := &Overview{
		GeneratedAt: now,
		Period:      enums.MonthKey(now),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := s.usage.GetSystemUsageStats(gctx, enums.MonthKey(now))
		if err != nil {
			return err
		}
		overview.CurrentMonth = stats
		return nil
	})
	g.Go(func() error {
		stats, err := s.usage.GetSystemUsageStats(gctx, enums.PreviousMonthKey(now))
		if err != nil {
			return err
		}
		overview.PreviousMonth = stats
		return nil
	})
	g.Go(func() error {
		total, err := s.users.CountAll(gctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count users")
		}
		overview.TotalUsers = total
		return nil
	})
	g.Go(func() error {
		rows, err := s.tierDistribution(gctx)
		if err != nil {
			return err
		}
		overview.TierDistribution = rows
		return nil
	})
	g.Go(func() error {
		count, err := s.subscriptions.CountExpiringSoon(gctx, now, now.Add(expiringSoonWindow))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count expiring subscriptions")
		}
		overview.ExpiringSoon = count
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	overview.Trends = buildTrends(overview.CurrentMonth, overview.PreviousMonth)
	return overview, nil
}

// tierDistribution folds users with no tier pointer into the default tier, so
// every user lands in exactly one bucket.
func (s *Service) tierDistribution(ctx context.Context) ([]TierDistributionRow, error) {
	tiers, err := s.tiers.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tiers")
	}
	counts, err := s.users.CountByCurrentTier(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count users by tier")
	}

	perTier := make(map[string]int64, len(counts))
	var unassigned int64
	var total int64
	for _, bucket := range counts {
		total += bucket.Users
		if bucket.TierID == nil {
			unassigned += bucket.Users
			continue
		}
		perTier[bucket.TierID.String()] += bucket.Users
	}

	rows := make([]TierDistributionRow, 0, len(tiers))
	for _, tier := range tiers {
		count := perTier[tier.ID.String()]
		if tier.IsDefault {
			count += unassigned
		}
		row := TierDistributionRow{
			TierID:      tier.ID,
			TierName:    tier.Name,
			DisplayName: tier.DisplayName,
			Users:       count,
		}
		if total > 0 {
			row.Percentage = roundTo1(float64(count) / float64(total) * 100)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// GetApproachingLimits proxies the quota enforcer's threshold scan.
func (s *Service) GetApproachingLimits(ctx context.Context, thresholdPercent float64) ([]usage.ApproachingLimitRow, error) {
	return s.usage.GetUsersApproachingLimits(ctx, thresholdPercent)
}

// buildTrends compares this month's totals against last month's. A metric
// that appears from zero reads as a 100 percent increase.
func buildTrends(current, previous *usage.SystemStats) []MetricTrend {
	trends := make([]MetricTrend, 0, len(enums.AllUsageMetrics()))
	for _, metric := range enums.AllUsageMetrics() {
		var cur, last int64
		if current != nil {
			cur = current.Stats[metric].TotalUsage
		}
		if previous != nil {
			last = previous.Stats[metric].TotalUsage
		}
		trend := MetricTrend{
			Metric:        metric,
			DisplayName:   metric.DisplayName(),
			CurrentTotal:  cur,
			PreviousTotal: last,
			Direction:     TrendSame,
		}
		switch {
		case last > 0:
			trend.ChangePercent = roundTo1(float64(cur-last) / float64(last) * 100)
		case cur > 0:
			trend.ChangePercent = 100
		}
		if cur > last {
			trend.Direction = TrendUp
		} else if cur < last {
			trend.Direction = TrendDown
		}
		trends = append(trends, trend)
	}
	return trends
}

func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
