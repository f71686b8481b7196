package analytics

import (
	"time"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/internal/usage"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
)

// TrendDirection labels month-over-month movement for one metric.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendSame TrendDirection = "same"
)

// MetricTrend compares one metric's total across the current and prior month.
type MetricTrend struct {
	Metric        enums.UsageMetric `json:"metric"`
	DisplayName   string            `json:"display_name"`
	CurrentTotal  int64             `json:"current_total"`
	PreviousTotal int64             `json:"previous_total"`
	ChangePercent float64           `json:"change_percent"`
	Direction     TrendDirection    `json:"direction"`
}

// TierDistributionRow is one bucket of the users-per-tier breakdown.
type TierDistributionRow struct {
	TierID      uuid.UUID `json:"tier_id"`
	TierName    string    `json:"tier_name"`
	DisplayName string    `json:"display_name"`
	Users       int64     `json:"users"`
	Percentage  float64   `json:"percentage"`
}

// Overview is the admin dashboard payload: system usage for the current and
// prior month, per-metric trends, the tier distribution, and how many paid
// subscriptions run out within the next 30 days.
type Overview struct {
	GeneratedAt      time.Time             `json:"generated_at"`
	Period           string                `json:"period"`
	TotalUsers       int64                 `json:"total_users"`
	CurrentMonth     *usage.SystemStats    `json:"current_month"`
	PreviousMonth    *usage.SystemStats    `json:"previous_month"`
	Trends           []MetricTrend         `json:"trends"`
	TierDistribution []TierDistributionRow `json:"tier_distribution"`
	ExpiringSoon     int64                 `json:"subscriptions_expiring_soon"`
}
