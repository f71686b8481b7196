package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
)

// MetricAggregate is the system-wide rollup for one metric and period.
type MetricAggregate struct {
	TotalUsage  int64
	ActiveUsers int64
	MaxUsage    int64
}

// PeriodCounterRow joins a counter with the owning user's identity and tier
// pointer for approaching-limit scans.
type PeriodCounterRow struct {
	UserID        uuid.UUID
	Email         string
	Metric        enums.UsageMetric
	UsedCount     int64
	CurrentTierID *uuid.UUID
}

// Repository persists usage counters. All increments are pushed down to the
// database so concurrent requests never lose updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Increment(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, periodKey string, count int64) error
	IncrementIfUnder(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, periodKey string, count int64, limit int64) (bool, error)
	GetCount(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, periodKey string) (int64, error)
	CountsForUser(ctx context.Context, userID uuid.UUID, monthKey string) (map[enums.UsageMetric]int64, error)
	Aggregate(ctx context.Context, metric enums.UsageMetric, periodKey string) (MetricAggregate, error)
	ListPeriodCounters(ctx context.Context, metric enums.UsageMetric, periodKey string) ([]PeriodCounterRow, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

var counterConflictKey = []clause.Column{
	{Name: "user_id"},
	{Name: "metric"},
	{Name: "period_key"},
}

// Increment applies an atomic upsert-increment. The addition happens inside
// the database, so two concurrent calls for the same key both land.
func (r *repository) Increment(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, periodKey string, count int64) error {
	now := time.Now().UTC()
	counter := &models.UsageCounter{
		ID:        uuid.New(),
		UserID:    userID,
		Metric:    metric,
		PeriodKey: periodKey,
		UsedCount: count,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: counterConflictKey,
			DoUpdates: clause.Assignments(map[string]any{
				"used_count": gorm.Expr("used_count + ?", count),
				"updated_at": now,
			}),
		}).
		Create(counter).Error
}

// IncrementIfUnder admits and records in one conditional database update:
// the increment only lands when used_count + count stays within limit.
// Returns whether the action was admitted.
func (r *repository) IncrementIfUnder(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, periodKey string, count int64, limit int64) (bool, error) {
	// Ensure the row exists so the conditional update always has a target.
	counter := &models.UsageCounter{
		ID:        uuid.New(),
		UserID:    userID,
		Metric:    metric,
		PeriodKey: periodKey,
		UsedCount: 0,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: counterConflictKey, DoNothing: true}).
		Create(counter).Error; err != nil {
		return false, err
	}

	result := r.db.WithContext(ctx).Exec(
		`UPDATE usage_counters
			SET used_count = used_count + ?, updated_at = ?
			WHERE user_id = ? AND metric = ? AND period_key = ? AND used_count + ? <= ?`,
		count, time.Now().UTC(), userID, metric, periodKey, count, limit,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) GetCount(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, periodKey string) (int64, error) {
	var counter models.UsageCounter
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND metric = ? AND period_key = ?", userID, metric, periodKey).
		First(&counter).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return counter.UsedCount, nil
}

// CountsForUser returns the user's counters relevant right now: the given
// month for monthly metrics plus the lifetime sentinel rows.
func (r *repository) CountsForUser(ctx context.Context, userID uuid.UUID, monthKey string) (map[enums.UsageMetric]int64, error) {
	var counters []models.UsageCounter
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND period_key IN ?", userID, []string{monthKey, enums.LifetimePeriodKey}).
		Find(&counters).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.UsageMetric]int64, len(counters))
	for _, counter := range counters {
		counts[counter.Metric] = counter.UsedCount
	}
	return counts, nil
}

func (r *repository) Aggregate(ctx context.Context, metric enums.UsageMetric, periodKey string) (MetricAggregate, error) {
	var agg MetricAggregate
	err := r.db.WithContext(ctx).
		Model(&models.UsageCounter{}).
		Select("COALESCE(SUM(used_count), 0) AS total_usage, COUNT(*) AS active_users, COALESCE(MAX(used_count), 0) AS max_usage").
		Where("metric = ? AND period_key = ? AND used_count > 0", metric, periodKey).
		Scan(&agg).Error
	if err != nil {
		return MetricAggregate{}, err
	}
	return agg, nil
}

func (r *repository) ListPeriodCounters(ctx context.Context, metric enums.UsageMetric, periodKey string) ([]PeriodCounterRow, error) {
	var rows []PeriodCounterRow
	err := r.db.WithContext(ctx).
		Model(&models.UsageCounter{}).
		Select("usage_counters.user_id, usage_counters.metric, usage_counters.used_count, users.email, users.current_tier_id").
		Joins("JOIN users ON users.id = usage_counters.user_id").
		Where("usage_counters.metric = ? AND usage_counters.period_key = ? AND usage_counters.used_count > 0", metric, periodKey).
		Order("usage_counters.user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
