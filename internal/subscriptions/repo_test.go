package subscriptions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
)

func setupSubscriptionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS user_subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  tier_id TEXT NOT NULL,
  status TEXT NOT NULL,
  billing_cycle TEXT NOT NULL,
  started_at DATETIME NOT NULL,
  expires_at DATETIME NOT NULL,
  cancelled_at DATETIME,
  auto_renew INTEGER NOT NULL DEFAULT 0,
  last_payment_at DATETIME,
  next_payment_at DATETIME,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_user_subscriptions_live
  ON user_subscriptions (user_id)
  WHERE status IN ('active', 'trial');`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedSubscription(t *testing.T, db *gorm.DB, userID uuid.UUID, status enums.SubscriptionStatus, started, expires time.Time) *models.UserSubscription {
	t.Helper()

	sub := &models.UserSubscription{
		ID:           uuid.New(),
		UserID:       userID,
		TierID:       uuid.New(),
		Status:       status,
		BillingCycle: enums.BillingCycleMonthly,
		StartedAt:    started,
		ExpiresAt:    expires,
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func TestCloseOutCurrentExpiresOnlyLiveRows(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	userID := uuid.New()
	active := seedSubscription(t, db, userID, enums.SubscriptionStatusActive, now.AddDate(0, -1, 0), now.AddDate(0, 1, 0))
	done := seedSubscription(t, db, userID, enums.SubscriptionStatusExpired, now.AddDate(0, -3, 0), now.AddDate(0, -2, 0))
	otherID := uuid.New()
	trial := seedSubscription(t, db, otherID, enums.SubscriptionStatusTrial, now.AddDate(0, 0, -3), now.AddDate(0, 0, 4))

	affected, err := repo.CloseOutCurrent(ctx, userID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	var sub models.UserSubscription
	require.NoError(t, db.First(&sub, "id = ?", active.ID).Error)
	assert.Equal(t, enums.SubscriptionStatusExpired, sub.Status)
	assert.False(t, sub.AutoRenew)
	require.NotNil(t, sub.CancelledAt)

	var untouched models.UserSubscription
	require.NoError(t, db.First(&untouched, "id = ?", done.ID).Error)
	assert.Nil(t, untouched.CancelledAt, "already terminal rows stay as they were")

	var otherUser models.UserSubscription
	require.NoError(t, db.First(&otherUser, "id = ?", trial.ID).Error)
	assert.Equal(t, enums.SubscriptionStatusTrial, otherUser.Status, "other users are untouched")

	affected, err = repo.CloseOutCurrent(ctx, otherID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected, "trials close out the same way")
}

func TestLiveRowUniquenessBackstop(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	userID := uuid.New()
	seedSubscription(t, db, userID, enums.SubscriptionStatusActive, now.AddDate(0, -1, 0), now.AddDate(0, 1, 0))

	// A second live row for the same user must be impossible to commit, no
	// matter how it got past the service layer.
	dup := &models.UserSubscription{
		UserID:       userID,
		TierID:       uuid.New(),
		Status:       enums.SubscriptionStatusTrial,
		BillingCycle: enums.BillingCycleTrial,
		StartedAt:    now,
		ExpiresAt:    now.AddDate(0, 0, 7),
	}
	require.Error(t, repo.Create(ctx, dup))

	// Once the live row is closed out, the slot frees up again.
	_, err := repo.CloseOutCurrent(ctx, userID, now)
	require.NoError(t, err)
	next := &models.UserSubscription{
		UserID:       userID,
		TierID:       uuid.New(),
		Status:       enums.SubscriptionStatusActive,
		BillingCycle: enums.BillingCycleMonthly,
		StartedAt:    now,
		ExpiresAt:    now.AddDate(0, 1, 0),
	}
	require.NoError(t, repo.Create(ctx, next))
}

func TestFindCurrentReturnsNewestLiveRow(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	userID := uuid.New()
	seedSubscription(t, db, userID, enums.SubscriptionStatusExpired, now.AddDate(0, -4, 0), now.AddDate(0, -3, 0))
	latest := seedSubscription(t, db, userID, enums.SubscriptionStatusActive, now.AddDate(0, 0, -1), now.AddDate(0, 1, 0))

	sub, err := repo.FindCurrent(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, latest.ID, sub.ID)
}

func TestFindCurrentMissingIsNil(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)

	sub, err := repo.FindCurrent(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestListOverduePicksOnlyLapsedLiveRows(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	lapsed := seedSubscription(t, db, uuid.New(), enums.SubscriptionStatusActive, now.AddDate(0, -2, 0), now.AddDate(0, -1, 0))
	seedSubscription(t, db, uuid.New(), enums.SubscriptionStatusActive, now.AddDate(0, 0, -5), now.AddDate(0, 1, 0))
	seedSubscription(t, db, uuid.New(), enums.SubscriptionStatusExpired, now.AddDate(0, -4, 0), now.AddDate(0, -3, 0))

	overdue, err := repo.ListOverdue(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, lapsed.ID, overdue[0].ID)
}

func TestCountExpiringSoonWindow(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	seedSubscription(t, db, uuid.New(), enums.SubscriptionStatusActive, now.AddDate(0, -1, 0), now.AddDate(0, 0, 10))
	seedSubscription(t, db, uuid.New(), enums.SubscriptionStatusTrial, now, now.AddDate(0, 0, 5))
	// Outside the 30-day window.
	seedSubscription(t, db, uuid.New(), enums.SubscriptionStatusActive, now, now.AddDate(0, 2, 0))
	// Already lapsed.
	seedSubscription(t, db, uuid.New(), enums.SubscriptionStatusActive, now.AddDate(0, -2, 0), now.AddDate(0, -1, 0))

	count, err := repo.CountExpiringSoon(ctx, now, now.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
