package usage

import (
	"time"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/pkg/enums"
)

// Decision is the outcome of an admission check. A denial is an expected
// result, not an error; it carries the metric's display name and limit so the
// caller can build an upgrade prompt.
type Decision struct {
	Allowed     bool              `json:"allowed"`
	Metric      enums.UsageMetric `json:"metric"`
	DisplayName string            `json:"display_name"`
	Used        int64             `json:"used"`
	Limit       int64             `json:"limit"`
	IsUnlimited bool              `json:"is_unlimited"`
}

// MetricUsage is one metric's slice of a user's usage summary.
type MetricUsage struct {
	Metric      enums.UsageMetric `json:"metric"`
	DisplayName string            `json:"display_name"`
	PeriodKind  enums.PeriodKind  `json:"period_kind"`
	Used        int64             `json:"used"`
	Limit       int64             `json:"limit"`
	IsUnlimited bool              `json:"is_unlimited"`
	Percentage  float64           `json:"percentage"`
	IsNearLimit bool              `json:"is_near_limit"`
	IsAtLimit   bool              `json:"is_at_limit"`
}

// Summary is the per-user usage snapshot consumed by dashboards and the
// notification service.
type Summary struct {
	UserID          uuid.UUID     `json:"user_id"`
	TierID          uuid.UUID     `json:"tier_id"`
	TierName        string        `json:"tier_name"`
	TierDisplayName string        `json:"tier_display_name"`
	Metrics         []MetricUsage `json:"metrics"`
	NextReset       time.Time     `json:"next_reset"`
}

// SystemMetricStats is the system-wide rollup for one metric.
type SystemMetricStats struct {
	TotalUsage      int64   `json:"total_usage"`
	ActiveUsers     int64   `json:"active_users"`
	AvgUsagePerUser float64 `json:"avg_usage_per_user"`
	MaxUsage        int64   `json:"max_usage"`
}

// SystemStats aggregates every metric for one monthly period. Lifetime
// metrics are rolled up across their sentinel period regardless of the month.
type SystemStats struct {
	Period string                                  `json:"period"`
	Stats  map[enums.UsageMetric]SystemMetricStats `json:"stats"`
}

// ApproachingLimitRow flags one (user, metric) pair at or over the threshold.
type ApproachingLimitRow struct {
	UserID     uuid.UUID         `json:"user_id"`
	Email      string            `json:"email"`
	Metric     enums.UsageMetric `json:"usage_type"`
	UsageCount int64             `json:"usage_count"`
	UsageLimit int64             `json:"usage_limit"`
	Percentage float64           `json:"percentage"`
}
