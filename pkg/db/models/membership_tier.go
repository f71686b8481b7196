package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/martagiraldo/promptstash-backend/pkg/enums"
)

// MembershipTier captures a tier's prices and per-metric limits. A limit of 0
// means unlimited.
type MembershipTier struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string          `gorm:"column:name;not null;uniqueIndex"`
	DisplayName  string          `gorm:"column:display_name;not null"`
	Description  string          `gorm:"column:description;not null;default:''"`
	PriceMonthly decimal.Decimal `gorm:"column:price_monthly;type:numeric(12,2);not null"`
	PriceAnnual  decimal.Decimal `gorm:"column:price_annual;type:numeric(12,2);not null"`
	IsDefault    bool            `gorm:"column:is_default;not null;default:false"`
	IsPremium    bool            `gorm:"column:is_premium;not null;default:false"`
	Features     pq.StringArray  `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`

	MaxPrompts       int `gorm:"column:max_prompts;not null;default:0"`
	MaxAIGenerations int `gorm:"column:max_ai_generations;not null;default:0"`
	MaxCategories    int `gorm:"column:max_categories;not null;default:0"`
	MaxBookmarks     int `gorm:"column:max_bookmarks;not null;default:0"`
	MaxNotes         int `gorm:"column:max_notes;not null;default:0"`
	MaxDocuments     int `gorm:"column:max_documents;not null;default:0"`
	MaxVideos        int `gorm:"column:max_videos;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Limit returns the tier's cap for the given metric; 0 is unlimited.
func (t MembershipTier) Limit(metric enums.UsageMetric) int {
	switch metric {
	case enums.MetricPromptCreation:
		return t.MaxPrompts
	case enums.MetricAIGeneration:
		return t.MaxAIGenerations
	case enums.MetricCategoryCreation:
		return t.MaxCategories
	case enums.MetricBookmarkCreation:
		return t.MaxBookmarks
	case enums.MetricNoteCreation:
		return t.MaxNotes
	case enums.MetricDocumentCreation:
		return t.MaxDocuments
	case enums.MetricVideoCreation:
		return t.MaxVideos
	}
	return 0
}

// IsUnlimited reports whether the tier places no cap on the metric.
func (t MembershipTier) IsUnlimited(metric enums.UsageMetric) bool {
	return t.Limit(metric) == 0
}
