package enums

import (
	"fmt"
	"time"
)

// PeriodKind classifies how a metric's counter window behaves.
type PeriodKind string

const (
	// PeriodKindMonthly counters reset every calendar month.
	PeriodKindMonthly PeriodKind = "monthly"
	// PeriodKindLifetime counters accumulate forever and never reset.
	PeriodKindLifetime PeriodKind = "lifetime"
)

// LifetimePeriodKey is the sentinel period key for lifetime counters.
const LifetimePeriodKey = "lifetime"

// UsageMetric names a countable user action limited by tier.
type UsageMetric string

const (
	MetricPromptCreation   UsageMetric = "prompt_creation"
	MetricAIGeneration     UsageMetric = "ai_generation"
	MetricCategoryCreation UsageMetric = "category_creation"
	MetricBookmarkCreation UsageMetric = "bookmark_creation"
	MetricNoteCreation     UsageMetric = "note_creation"
	MetricDocumentCreation UsageMetric = "document_creation"
	MetricVideoCreation    UsageMetric = "video_creation"
)

// metricInfo is the single registry consulted by every component. Adding a
// metric means adding one entry here plus a limit column on membership_tiers.
type metricInfo struct {
	periodKind  PeriodKind
	displayName string
}

var metricRegistry = map[UsageMetric]metricInfo{
	MetricPromptCreation:   {PeriodKindMonthly, "Prompts"},
	MetricAIGeneration:     {PeriodKindMonthly, "AI Generations"},
	MetricCategoryCreation: {PeriodKindMonthly, "Categories"},
	MetricBookmarkCreation: {PeriodKindLifetime, "Bookmarks"},
	MetricNoteCreation:     {PeriodKindLifetime, "Notes"},
	MetricDocumentCreation: {PeriodKindLifetime, "Documents"},
	MetricVideoCreation:    {PeriodKindLifetime, "Videos"},
}

// metricOrder fixes enumeration order for summaries and CSV exports.
var metricOrder = []UsageMetric{
	MetricPromptCreation,
	MetricAIGeneration,
	MetricCategoryCreation,
	MetricBookmarkCreation,
	MetricNoteCreation,
	MetricDocumentCreation,
	MetricVideoCreation,
}

// AllUsageMetrics returns every metric in stable display order.
func AllUsageMetrics() []UsageMetric {
	metrics := make([]UsageMetric, len(metricOrder))
	copy(metrics, metricOrder)
	return metrics
}

// MonthlyUsageMetrics returns the metrics whose counters reset each month.
func MonthlyUsageMetrics() []UsageMetric {
	var metrics []UsageMetric
	for _, m := range metricOrder {
		if m.PeriodKind() == PeriodKindMonthly {
			metrics = append(metrics, m)
		}
	}
	return metrics
}

// String implements fmt.Stringer.
func (m UsageMetric) String() string {
	return string(m)
}

// IsValid reports whether the value is a known metric.
func (m UsageMetric) IsValid() bool {
	_, ok := metricRegistry[m]
	return ok
}

// PeriodKind returns the metric's fixed window classification.
func (m UsageMetric) PeriodKind() PeriodKind {
	return metricRegistry[m].periodKind
}

// DisplayName returns the user-facing label used in limit messages.
func (m UsageMetric) DisplayName() string {
	if info, ok := metricRegistry[m]; ok {
		return info.displayName
	}
	return string(m)
}

// PeriodKey returns the counter key for this metric at the given instant:
// the calendar month in UTC for monthly metrics, the lifetime sentinel
// otherwise.
func (m UsageMetric) PeriodKey(now time.Time) string {
	if m.PeriodKind() == PeriodKindLifetime {
		return LifetimePeriodKey
	}
	return MonthKey(now)
}

// MonthKey formats the calendar-month period key (UTC).
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NextMonthStart returns the first instant of the next calendar month (UTC).
func NextMonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// PreviousMonthKey returns the period key for the month before t.
func PreviousMonthKey(t time.Time) string {
	u := t.UTC()
	return MonthKey(time.Date(u.Year(), u.Month()-1, 1, 0, 0, 0, 0, time.UTC))
}

// ParseUsageMetric converts raw input into a UsageMetric.
func ParseUsageMetric(value string) (UsageMetric, error) {
	m := UsageMetric(value)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid usage metric %q", value)
	}
	return m, nil
}
