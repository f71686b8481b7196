package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/pkg/enums"
)

// UsageCounter persists one monotonically increasing count per
// (user, metric, period). Monthly rows are kept after their month ends so
// trend analytics can compare periods; lifetime rows never reset.
type UsageCounter struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID         `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_usage_counters_key"`
	Metric    enums.UsageMetric `gorm:"column:metric;not null;uniqueIndex:idx_usage_counters_key"`
	PeriodKey string            `gorm:"column:period_key;not null;uniqueIndex:idx_usage_counters_key"`
	UsedCount int64             `gorm:"column:used_count;not null;default:0"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
