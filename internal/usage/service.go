package usage

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
	"github.com/martagiraldo/promptstash-backend/pkg/metrics"
)

const nearLimitThreshold = 75.0

type usersRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type tiersRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.MembershipTier, error)
	FindDefault(ctx context.Context) (*models.MembershipTier, error)
	List(ctx context.Context) ([]models.MembershipTier, error)
}

// ServiceParams groups dependencies for the quota enforcer.
type ServiceParams struct {
	Repo    Repository
	Users   usersRepository
	Tiers   tiersRepository
	Metrics *metrics.QuotaMetrics
	Now     func() time.Time
}

// Service is the quota enforcer: admission decisions, consumption recording,
// and the derived summaries consumed by dashboards and analytics.
type Service struct {
	repo    Repository
	users   usersRepository
	tiers   tiersRepository
	metrics *metrics.QuotaMetrics
	now     func() time.Time
}

// NewService builds a quota enforcer.
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
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    params.Repo,
		users:   params.Users,
		tiers:   params.Tiers,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// CanPerformAction reports whether the user may perform the metered action.
// Pure read: no counter is touched. The result may be stale by the time the
// caller acts on it; ConsumeAction closes that race for gated metrics.
func (s *Service) CanPerformAction(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, requested int64) (*Decision, error) {
	if err := validateRequest(metric, requested); err != nil {
		return nil, err
	}

	tier, err := s.resolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := int64(tier.Limit(metric))
	if limit == 0 {
		return &Decision{
			Allowed:     true,
			Metric:      metric,
			DisplayName: metric.DisplayName(),
			IsUnlimited: true,
		}, nil
	}

	used, err := s.repo.GetCount(ctx, userID, metric, metric.PeriodKey(s.now()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read usage counter")
	}

	return &Decision{
		Allowed:     used+requested <= limit,
		Metric:      metric,
		DisplayName: metric.DisplayName(),
		Used:        used,
		Limit:       limit,
	}, nil
}

// TrackUsage records consumption after the caller performed the action. The
// increment is atomic; concurrent calls for the same key all land.
func (s *Service) TrackUsage(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, count int64) error {
	if err := validateRequest(metric, count); err != nil {
		return err
	}
	if err := s.repo.Increment(ctx, userID, metric, metric.PeriodKey(s.now()), count); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "track usage")
	}
	return nil
}

// ConsumeAction admits and records in a single conditional increment, so N
// racing requests can never overshoot the limit. This is the path metered
// handlers use for actions that gate paid entitlements.
func (s *Service) ConsumeAction(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, count int64) (*Decision, error) {
	if err := validateRequest(metric, count); err != nil {
		return nil, err
	}

	tier, err := s.resolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}

	periodKey := metric.PeriodKey(s.now())
	limit := int64(tier.Limit(metric))

	if limit == 0 {
		if err := s.repo.Increment(ctx, userID, metric, periodKey, count); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "track usage")
		}
		s.metrics.IncAllowed(metric.String())
		return &Decision{
			Allowed:     true,
			Metric:      metric,
			DisplayName: metric.DisplayName(),
			IsUnlimited: true,
		}, nil
	}

	admitted, err := s.repo.IncrementIfUnder(ctx, userID, metric, periodKey, count, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume quota")
	}

	used, err := s.repo.GetCount(ctx, userID, metric, periodKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read usage counter")
	}

	if admitted {
		s.metrics.IncAllowed(metric.String())
	} else {
		s.metrics.IncDenied(metric.String())
	}
	return &Decision{
		Allowed:     admitted,
		Metric:      metric,
		DisplayName: metric.DisplayName(),
		Used:        used,
		Limit:       limit,
	}, nil
}

// GetUserUsageSummary derives the per-metric snapshot for one user. Users
// without an assigned tier fall back to the catalog default.
func (s *Service) GetUserUsageSummary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	tier, err := s.resolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	counts, err := s.repo.CountsForUser(ctx, userID, enums.MonthKey(now))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load usage counters")
	}

	summary := &Summary{
		UserID:          userID,
		TierID:          tier.ID,
		TierName:        tier.Name,
		TierDisplayName: tier.DisplayName,
		NextReset:       enums.NextMonthStart(now),
	}
	for _, metric := range enums.AllUsageMetrics() {
		summary.Metrics = append(summary.Metrics, buildMetricUsage(metric, counts[metric], int64(tier.Limit(metric))))
	}
	return summary, nil
}

// GetSystemUsageStats rolls up all users' counters for the given month.
// An empty period means the current month.
func (s *Service) GetSystemUsageStats(ctx context.Context, period string) (*SystemStats, error) {
	if period == "" {
		period = enums.MonthKey(s.now())
	}

	stats := &SystemStats{
		Period: period,
		Stats:  make(map[enums.UsageMetric]SystemMetricStats, len(enums.AllUsageMetrics())),
	}
	for _, metric := range enums.AllUsageMetrics() {
		periodKey := period
		if metric.PeriodKind() == enums.PeriodKindLifetime {
			periodKey = enums.LifetimePeriodKey
		}
		agg, err := s.repo.Aggregate(ctx, metric, periodKey)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate usage")
		}
		entry := SystemMetricStats{
			TotalUsage:  agg.TotalUsage,
			ActiveUsers: agg.ActiveUsers,
			MaxUsage:    agg.MaxUsage,
		}
		if agg.ActiveUsers > 0 {
			entry.AvgUsagePerUser = roundTo1(float64(agg.TotalUsage) / float64(agg.ActiveUsers))
		}
		stats.Stats[metric] = entry
	}
	return stats, nil
}

// GetUsersApproachingLimits scans every non-unlimited monthly metric and
// returns one row per (user, metric) pair at or over the threshold, sorted by
// percentage descending with user id as the tie break.
func (s *Service) GetUsersApproachingLimits(ctx context.Context, thresholdPercent float64) ([]ApproachingLimitRow, error) {
	if thresholdPercent <= 0 || thresholdPercent > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "threshold must be between 1 and 100")
	}

	tierLimits, defaultTier, err := s.loadTierIndex(ctx)
	if err != nil {
		return nil, err
	}

	monthKey := enums.MonthKey(s.now())
	var rows []ApproachingLimitRow
	for _, metric := range enums.MonthlyUsageMetrics() {
		counters, err := s.repo.ListPeriodCounters(ctx, metric, monthKey)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan usage counters")
		}
		for _, counter := range counters {
			tier := defaultTier
			if counter.CurrentTierID != nil {
				if t, ok := tierLimits[*counter.CurrentTierID]; ok {
					tier = t
				}
			}
			limit := int64(tier.Limit(metric))
			if limit == 0 {
				continue
			}
			pct := percentage(counter.UsedCount, limit)
			if pct < thresholdPercent {
				continue
			}
			rows = append(rows, ApproachingLimitRow{
				UserID:     counter.UserID,
				Email:      counter.Email,
				Metric:     metric,
				UsageCount: counter.UsedCount,
				UsageLimit: limit,
				Percentage: pct,
			})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Percentage != rows[j].Percentage {
			return rows[i].Percentage > rows[j].Percentage
		}
		return rows[i].UserID.String() < rows[j].UserID.String()
	})
	return rows, nil
}

func (s *Service) resolveTier(ctx context.Context, userID uuid.UUID) (*models.MembershipTier, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	if user.CurrentTierID != nil {
		tier, err := s.tiers.FindByID(ctx, *user.CurrentTierID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
		}
		if tier != nil {
			return tier, nil
		}
	}

	// Brand-new users have no tier pointer yet; they get the free defaults.
	tier, err := s.tiers.FindDefault(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default tier")
	}
	if tier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no default tier configured")
	}
	return tier, nil
}

func (s *Service) loadTierIndex(ctx context.Context) (map[uuid.UUID]*models.MembershipTier, *models.MembershipTier, error) {
	tiers, err := s.tiers.List(ctx)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tiers")
	}
	index := make(map[uuid.UUID]*models.MembershipTier, len(tiers))
	var defaultTier *models.MembershipTier
	for i := range tiers {
		index[tiers[i].ID] = &tiers[i]
		if tiers[i].IsDefault {
			defaultTier = &tiers[i]
		}
	}
	if defaultTier == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeDependency, "no default tier configured")
	}
	return index, defaultTier, nil
}

func validateRequest(metric enums.UsageMetric, count int64) error {
	if !metric.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown usage metric").
			WithDetails(map[string]any{"metric": metric.String()})
	}
	if count <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "count must be positive")
	}
	return nil
}

func buildMetricUsage(metric enums.UsageMetric, used, limit int64) MetricUsage {
	entry := MetricUsage{
		Metric:      metric,
		DisplayName: metric.DisplayName(),
		PeriodKind:  metric.PeriodKind(),
		Used:        used,
		Limit:       limit,
	}
	if limit == 0 {
		entry.IsUnlimited = true
		return entry
	}
	entry.Percentage = percentage(used, limit)
	entry.IsAtLimit = entry.Percentage >= 100
	entry.IsNearLimit = entry.Percentage >= nearLimitThreshold && !entry.IsAtLimit
	return entry
}

// percentage returns used/limit*100 capped at 100; limit 0 yields 0.
func percentage(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	pct := float64(used) / float64(limit) * 100
	if pct > 100 {
		return 100
	}
	return roundTo1(pct)
}

func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
