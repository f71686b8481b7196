package usage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

type fakeUsageRepo struct {
	counts      map[string]int64
	periodRows  map[string][]PeriodCounterRow
	admit       bool
	incremented []int64
	conditional int
}

func usageKey(userID uuid.UUID, metric enums.UsageMetric, periodKey string) string {
	return userID.String() + "|" + metric.String() + "|" + periodKey
}

func (f *fakeUsageRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeUsageRepo) Increment(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, periodKey string, count int64) error {
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[usageKey(userID, metric, periodKey)] += count
	f.incremented = append(f.incremented, count)
	return nil
}

func (f *fakeUsageRepo) IncrementIfUnder(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, periodKey string, count, limit int64) (bool, error) {
	f.conditional++
	if !f.admit {
		return false, nil
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[usageKey(userID, metric, periodKey)] += count
	return true, nil
}

func (f *fakeUsageRepo) GetCount(ctx context.Context, userID uuid.UUID, metric enums.UsageMetric, periodKey string) (int64, error) {
	return f.counts[usageKey(userID, metric, periodKey)], nil
}

func (f *fakeUsageRepo) CountsForUser(ctx context.Context, userID uuid.UUID, monthKey string) (map[enums.UsageMetric]int64, error) {
	out := map[enums.UsageMetric]int64{}
	for _, metric := range enums.AllUsageMetrics() {
		if v, ok := f.counts[usageKey(userID, metric, metric.PeriodKey(testNow))]; ok {
			out[metric] = v
		}
	}
	return out, nil
}

func (f *fakeUsageRepo) Aggregate(ctx context.Context, metric enums.UsageMetric, periodKey string) (MetricAggregate, error) {
	return MetricAggregate{}, nil
}

func (f *fakeUsageRepo) ListPeriodCounters(ctx context.Context, metric enums.UsageMetric, periodKey string) ([]PeriodCounterRow, error) {
	return f.periodRows[metric.String()+"|"+periodKey], nil
}

type fakeUsers struct {
	user *models.User
}

func (f *fakeUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, nil
}

type fakeTiers struct {
	tiers []models.MembershipTier
}

func (f *fakeTiers) FindByID(ctx context.Context, id uuid.UUID) (*models.MembershipTier, error) {
	for i := range f.tiers {
		if f.tiers[i].ID == id {
			return &f.tiers[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTiers) FindDefault(ctx context.Context) (*models.MembershipTier, error) {
	for i := range f.tiers {
		if f.tiers[i].IsDefault {
			return &f.tiers[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTiers) List(ctx context.Context) ([]models.MembershipTier, error) {
	return f.tiers, nil
}

func newTestService(t *testing.T, repo Repository, user *models.User, tiers []models.MembershipTier) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:  repo,
		Users: &fakeUsers{user: user},
		Tiers: &fakeTiers{tiers: tiers},
		Now:   func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func freeTier() models.MembershipTier {
	return models.MembershipTier{
		ID:               uuid.New(),
		Name:             "free",
		DisplayName:      "Free",
		IsDefault:        true,
		MaxPrompts:       25,
		MaxAIGenerations: 10,
		MaxCategories:    5,
		MaxBookmarks:     50,
		MaxNotes:         50,
		MaxDocuments:     10,
		MaxVideos:        5,
	}
}

func premiumTier() models.MembershipTier {
	return models.MembershipTier{
		ID:          uuid.New(),
		Name:        "premium",
		DisplayName: "Premium",
		IsPremium:   true,
	}
}

func TestCanPerformActionWithinLimit(t *testing.T) {
	tier := freeTier()
	user := &models.User{ID: uuid.New(), CurrentTierID: &tier.ID}
	repo := &fakeUsageRepo{counts: map[string]int64{
		usageKey(user.ID, enums.MetricPromptCreation, "2026-08"): 24,
	}}
	svc := newTestService(t, repo, user, []models.MembershipTier{tier})

	decision, err := svc.CanPerformAction(context.Background(), user.ID, enums.MetricPromptCreation, 1)
	if err != nil {
		t.Fatalf("CanPerformAction: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected 24+1 <= 25 to be allowed")
	}

	decision, err = svc.CanPerformAction(context.Background(), user.ID, enums.MetricPromptCreation, 2)
	if err != nil {
		t.Fatalf("CanPerformAction: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected 24+2 > 25 to be denied")
	}
	if decision.Limit != 25 || decision.Used != 24 {
		t.Fatalf("expected used=24 limit=25, got used=%d limit=%d", decision.Used, decision.Limit)
	}
	if decision.DisplayName != "Prompts" {
		t.Fatalf("denial must carry the display name, got %q", decision.DisplayName)
	}
}

func TestCanPerformActionUnlimitedTier(t *testing.T) {
	tier := premiumTier()
	user := &models.User{ID: uuid.New(), CurrentTierID: &tier.ID}
	repo := &fakeUsageRepo{}
	svc := newTestService(t, repo, user, []models.MembershipTier{tier})

	decision, err := svc.CanPerformAction(context.Background(), user.ID, enums.MetricAIGeneration, 1000)
	if err != nil {
		t.Fatalf("CanPerformAction: %v", err)
	}
	if !decision.Allowed || !decision.IsUnlimited {
		t.Fatalf("expected unlimited allow, got %+v", decision)
	}
}

func TestCanPerformActionRejectsBadInput(t *testing.T) {
	tier := freeTier()
	user := &models.User{ID: uuid.New(), CurrentTierID: &tier.ID}
	svc := newTestService(t, &fakeUsageRepo{}, user, []models.MembershipTier{tier})

	if _, err := svc.CanPerformAction(context.Background(), user.ID, enums.UsageMetric("bogus"), 1); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for unknown metric, got %v", err)
	}
	if _, err := svc.CanPerformAction(context.Background(), user.ID, enums.MetricPromptCreation, 0); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for zero count, got %v", err)
	}
}

func TestCanPerformActionUnknownUser(t *testing.T) {
	tier := freeTier()
	svc := newTestService(t, &fakeUsageRepo{}, nil, []models.MembershipTier{tier})

	_, err := svc.CanPerformAction(context.Background(), uuid.New(), enums.MetricPromptCreation, 1)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestConsumeActionDenied(t *testing.T) {
	tier := freeTier()
	user := &models.User{ID: uuid.New(), CurrentTierID: &tier.ID}
	repo := &fakeUsageRepo{admit: false, counts: map[string]int64{
		usageKey(user.ID, enums.MetricAIGeneration, "2026-08"): 10,
	}}
	svc := newTestService(t, repo, user, []models.MembershipTier{tier})

	decision, err := svc.ConsumeAction(context.Background(), user.ID, enums.MetricAIGeneration, 1)
	if err != nil {
		t.Fatalf("ConsumeAction: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial at the limit")
	}
	if decision.Used != 10 || decision.Limit != 10 {
		t.Fatalf("denial must report used=10 limit=10, got %+v", decision)
	}
	if repo.conditional != 1 {
		t.Fatalf("expected one conditional increment, got %d", repo.conditional)
	}
}

func TestConsumeActionUnlimitedSkipsConditional(t *testing.T) {
	tier := premiumTier()
	user := &models.User{ID: uuid.New(), CurrentTierID: &tier.ID}
	repo := &fakeUsageRepo{}
	svc := newTestService(t, repo, user, []models.MembershipTier{tier})

	decision, err := svc.ConsumeAction(context.Background(), user.ID, enums.MetricPromptCreation, 3)
	if err != nil {
		t.Fatalf("ConsumeAction: %v", err)
	}
	if !decision.Allowed || !decision.IsUnlimited {
		t.Fatalf("expected unlimited allow, got %+v", decision)
	}
	if repo.conditional != 0 {
		t.Fatal("unlimited metrics must use the plain increment path")
	}
	if len(repo.incremented) != 1 || repo.incremented[0] != 3 {
		t.Fatalf("expected one plain increment of 3, got %v", repo.incremented)
	}
}

func TestUserWithoutTierFallsBackToDefault(t *testing.T) {
	tier := freeTier()
	user := &models.User{ID: uuid.New()}
	repo := &fakeUsageRepo{admit: true}
	svc := newTestService(t, repo, user, []models.MembershipTier{tier})

	decision, err := svc.ConsumeAction(context.Background(), user.ID, enums.MetricCategoryCreation, 1)
	if err != nil {
		t.Fatalf("ConsumeAction: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected first category on the free defaults to be allowed")
	}
	if decision.Limit != 5 {
		t.Fatalf("expected the default tier's limit 5, got %d", decision.Limit)
	}
}

func TestGetUserUsageSummaryPercentages(t *testing.T) {
	tier := freeTier()
	user := &models.User{ID: uuid.New(), CurrentTierID: &tier.ID}
	repo := &fakeUsageRepo{counts: map[string]int64{
		usageKey(user.ID, enums.MetricPromptCreation, "2026-08"):                 19,
		usageKey(user.ID, enums.MetricAIGeneration, "2026-08"):                   10,
		usageKey(user.ID, enums.MetricBookmarkCreation, enums.LifetimePeriodKey): 75,
	}}
	svc := newTestService(t, repo, user, []models.MembershipTier{tier})

	summary, err := svc.GetUserUsageSummary(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserUsageSummary: %v", err)
	}
	if summary.TierName != "free" {
		t.Fatalf("expected free tier, got %q", summary.TierName)
	}
	if len(summary.Metrics) != len(enums.AllUsageMetrics()) {
		t.Fatalf("summary must cover every metric, got %d", len(summary.Metrics))
	}

	byMetric := map[enums.UsageMetric]MetricUsage{}
	for _, m := range summary.Metrics {
		byMetric[m.Metric] = m
	}

	prompts := byMetric[enums.MetricPromptCreation]
	if prompts.Percentage != 76.0 || !prompts.IsNearLimit || prompts.IsAtLimit {
		t.Fatalf("19/25 should be 76%% near-limit, got %+v", prompts)
	}
	ai := byMetric[enums.MetricAIGeneration]
	if ai.Percentage != 100 || !ai.IsAtLimit {
		t.Fatalf("10/10 should be at-limit, got %+v", ai)
	}
	bookmarks := byMetric[enums.MetricBookmarkCreation]
	if bookmarks.Percentage != 100 {
		t.Fatalf("75/50 must cap at 100, got %v", bookmarks.Percentage)
	}

	wantReset := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if !summary.NextReset.Equal(wantReset) {
		t.Fatalf("expected next reset %s, got %s", wantReset, summary.NextReset)
	}
}

func TestGetUsersApproachingLimitsMembershipAndOrder(t *testing.T) {
	free := freeTier()
	personal := models.MembershipTier{
		ID:          uuid.New(),
		Name:        "personal",
		DisplayName: "Personal",
		MaxPrompts:  50,
	}
	premium := premiumTier()

	alice := PeriodCounterRow{UserID: uuid.New(), Email: "alice@example.com", CurrentTierID: &free.ID}
	bob := PeriodCounterRow{UserID: uuid.New(), Email: "bob@example.com", CurrentTierID: &free.ID}
	carol := PeriodCounterRow{UserID: uuid.New(), Email: "carol@example.com", CurrentTierID: &premium.ID}
	dave := PeriodCounterRow{UserID: uuid.New(), Email: "dave@example.com", CurrentTierID: &personal.ID}
	erin := PeriodCounterRow{UserID: uuid.New(), Email: "erin@example.com"}

	row := func(base PeriodCounterRow, used int64) PeriodCounterRow {
		base.UsedCount = used
		return base
	}
	repo := &fakeUsageRepo{periodRows: map[string][]PeriodCounterRow{
		"prompt_creation|2026-08": {
			row(alice, 19), // 76% of 25
			row(bob, 18),   // 72%, below threshold
			row(carol, 500),
			row(dave, 38), // 76% of 50
			row(erin, 25), // no tier pointer, free defaults, 100%
		},
		"ai_generation|2026-08": {
			row(alice, 8), // 80% of 10
		},
	}}
	svc := newTestService(t, repo, nil, []models.MembershipTier{free, personal, premium})

	rows, err := svc.GetUsersApproachingLimits(context.Background(), 75)
	if err != nil {
		t.Fatalf("GetUsersApproachingLimits: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d: %+v", len(rows), rows)
	}

	if rows[0].UserID != erin.UserID || rows[0].Percentage != 100 {
		t.Fatalf("expected erin at 100%% first, got %+v", rows[0])
	}
	if rows[1].UserID != alice.UserID || rows[1].Metric != enums.MetricAIGeneration || rows[1].Percentage != 80 {
		t.Fatalf("expected alice's ai_generation at 80%% second, got %+v", rows[1])
	}

	// The two 76% rows tie on percentage; user id breaks the tie.
	tied := []ApproachingLimitRow{rows[2], rows[3]}
	if tied[0].UserID.String() > tied[1].UserID.String() {
		t.Fatalf("tied rows must order by user id, got %s then %s", tied[0].UserID, tied[1].UserID)
	}
	for _, got := range tied {
		switch got.UserID {
		case alice.UserID:
			if got.Metric != enums.MetricPromptCreation || got.UsageCount != 19 || got.UsageLimit != 25 {
				t.Fatalf("unexpected alice row %+v", got)
			}
		case dave.UserID:
			if got.UsageCount != 38 || got.UsageLimit != 50 || got.Percentage != 76 {
				t.Fatalf("38/50 must report 76%% with raw counts, got %+v", got)
			}
		default:
			t.Fatalf("unexpected user in tied rows: %+v", got)
		}
	}

	for _, got := range rows {
		if got.UserID == bob.UserID {
			t.Fatal("72% sits below the 75% threshold and must not appear")
		}
		if got.UserID == carol.UserID {
			t.Fatal("unlimited tiers must be skipped")
		}
	}
}

func TestGetUsersApproachingLimitsThresholdValidation(t *testing.T) {
	tier := freeTier()
	svc := newTestService(t, &fakeUsageRepo{}, nil, []models.MembershipTier{tier})

	for _, threshold := range []float64{0, -5, 101} {
		_, err := svc.GetUsersApproachingLimits(context.Background(), threshold)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("threshold %v: expected validation error, got %v", threshold, err)
		}
	}
}
