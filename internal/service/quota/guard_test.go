package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// ===== TEST DOUBLES =====

type fakeSettings map[string]*domain.UserSettings

func (f fakeSettings) GetUserSettings(_ context.Context, userID string) (*domain.UserSettings, error) {
	if s, ok := f[userID]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

type fakeCounter struct {
	emails, tasks int
	emailCalls    int
	since         time.Time
}

func (f *fakeCounter) CountEmailsSince(_ context.Context, _ string, since time.Time) (int, error) {
	f.emailCalls++
	f.since = since
	return f.emails, nil
}

func (f *fakeCounter) CountTasksSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.tasks, nil
}

var now = time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

// ===== TIERS =====

func TestTierFor(t *testing.T) {
	tests := []struct {
		limit int
		want  string
		tasks int
		batch int
	}{
		{50, "Starter", 3, 10},
		{100, "Starter", 3, 10},
		{101, "Professional", 5, 25},
		{500, "Professional", 5, 25},
		{2000, "Business", 8, 50},
		{2001, "Enterprise", 12, 100},
		{50000, "Enterprise", 12, 100},
	}
	for _, tt := range tests {
		got := TierFor(tt.limit)
		assert.Equal(t, tt.want, got.Name, "limit %d", tt.limit)
		assert.Equal(t, tt.tasks, got.MaxDailyAutomationSuggestions)
		assert.Equal(t, tt.batch, got.MaxBatchSize)
	}
}

func TestDailyEmailLimit(t *testing.T) {
	g := NewGuard(fakeSettings{}, &fakeCounter{}, Options{ProviderLimits: map[string]int{"zoho": 400}})

	assert.Equal(t, 500, g.DailyEmailLimit(&domain.UserSettings{EmailProvider: "gmail"}))
	assert.Equal(t, 10000, g.DailyEmailLimit(&domain.UserSettings{EmailProvider: "Office365"}))
	assert.Equal(t, 400, g.DailyEmailLimit(&domain.UserSettings{EmailProvider: "zoho"}), "override wins")
	assert.Equal(t, 100, g.DailyEmailLimit(&domain.UserSettings{EmailProvider: "fastmail"}))
	assert.Equal(t, 1500, g.DailyEmailLimit(&domain.UserSettings{EmailProvider: "gmail", CustomDailyEmailLimit: 1500}))
	assert.Equal(t, 100, g.DailyEmailLimit(nil))
}

// ===== COMPUTE QUOTA =====

func TestComputeQuota_NearLimit(t *testing.T) {
	counter := &fakeCounter{emails: 85, tasks: 1}
	g := NewGuard(fakeSettings{"u1": {UserID: "u1", EmailProvider: "sendgrid"}}, counter, Options{})

	q, err := g.ComputeQuota(context.Background(), "u1", now)
	require.NoError(t, err)

	assert.Equal(t, 100, q.DailyEmailLimit)
	assert.Equal(t, "Starter", q.Tier.Name)
	assert.True(t, q.IsNearEmailLimit)
	assert.False(t, q.CanCreateMoreTasks)
	assert.Equal(t, 15, q.RemainingEmails)
	assert.Equal(t, 2, q.RemainingTasks)
	assert.InDelta(t, 85.0, q.EmailCapacityUsedPct, 0.001)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), q.DayStart)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), q.ResetsAt)
	assert.Equal(t, q.DayStart, counter.since)

	_, err = g.CheckSend(context.Background(), "u1", now)
	assert.ErrorIs(t, err, ErrNearEmailLimit)
	_, err = g.CheckSuggest(context.Background(), "u1", now)
	assert.ErrorIs(t, err, ErrNearEmailLimit)
}

func TestComputeQuota_BelowThreshold(t *testing.T) {
	g := NewGuard(fakeSettings{}, &fakeCounter{emails: 79}, Options{})

	q, err := g.CheckSend(context.Background(), "nobody", now)
	require.NoError(t, err)
	assert.False(t, q.IsNearEmailLimit)
	assert.True(t, q.CanCreateMoreTasks)
}

func TestComputeQuota_ExactlyAtThreshold(t *testing.T) {
	g := NewGuard(fakeSettings{}, &fakeCounter{emails: 80}, Options{})
	q, err := g.ComputeQuota(context.Background(), "u", now)
	require.NoError(t, err)
	assert.True(t, q.IsNearEmailLimit)
}

func TestCheckSuggest_TaskLimit(t *testing.T) {
	g := NewGuard(fakeSettings{}, &fakeCounter{tasks: 3}, Options{})

	q, err := g.CheckSuggest(context.Background(), "u", now)
	assert.ErrorIs(t, err, ErrTaskLimitReached)
	assert.Equal(t, 0, q.RemainingTasks)
	assert.False(t, q.CanCreateMoreTasks)
}

func TestDayStart_UsesUTC(t *testing.T) {
	loc := time.FixedZone("PDT", -7*3600)
	local := time.Date(2025, 3, 10, 20, 0, 0, 0, loc) // 03:00 UTC next day
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), DayStart(local))
}

// ===== REDIS COUNTER =====

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisCounter_SeedsFromStore(t *testing.T) {
	mr, client := setupRedis(t)
	store := &fakeCounter{emails: 7}
	c := NewRedisCounter(client, store)
	ctx := context.Background()
	day := DayStart(now)

	n, err := c.CountEmailsSince(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 1, store.emailCalls)

	val, err := mr.Get("quota:u1:2025-03-10:emails")
	require.NoError(t, err)
	assert.Equal(t, "7", val)

	require.NoError(t, c.RecordEmails(ctx, "u1", day, 1))
	n, err = c.CountEmailsSince(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 1, store.emailCalls, "served from redis after seeding")
}

func TestRedisCounter_RecordBeforeSeedIsDeferred(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewRedisCounter(client, &fakeCounter{tasks: 2})
	ctx := context.Background()
	day := DayStart(now)

	require.NoError(t, c.RecordTasks(ctx, "u1", day, 1))
	assert.False(t, mr.Exists("quota:u1:2025-03-10:tasks"))

	n, err := c.CountTasksSince(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGuard_RecordSendThroughRedis(t *testing.T) {
	_, client := setupRedis(t)
	counter := NewRedisCounter(client, &fakeCounter{emails: 79})
	g := NewGuard(fakeSettings{}, counter, Options{})
	ctx := context.Background()

	_, err := g.CheckSend(ctx, "u1", now)
	require.NoError(t, err)

	g.RecordSend(ctx, "u1", now)

	_, err = g.CheckSend(ctx, "u1", now)
	assert.ErrorIs(t, err, ErrNearEmailLimit)
}
