package recommendation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/scoring"
	"github.com/ignite/enrollment-engine/internal/service/quota"
)

// ===== TEST DOUBLES =====

type memRepo struct {
	contacts    []domain.Contact
	campaigns   []domain.Campaign
	enrollments []domain.Enrollment
	tasks       []*domain.AutomationTask
	listCalls   int
}

func (m *memRepo) ListContacts(_ context.Context, _ string) ([]domain.Contact, error) {
	m.listCalls++
	return m.contacts, nil
}

func (m *memRepo) ListCampaigns(_ context.Context, _ string) ([]domain.Campaign, error) {
	return m.campaigns, nil
}

func (m *memRepo) ListOpenEnrollments(_ context.Context, _ string) ([]domain.Enrollment, error) {
	return m.enrollments, nil
}

func (m *memRepo) CreateTask(_ context.Context, t *domain.AutomationTask) error {
	m.tasks = append(m.tasks, t)
	return nil
}

type fakeQuota struct {
	q        quota.Quota
	recorded int
}

func (f *fakeQuota) ComputeQuota(_ context.Context, _ string, now time.Time) (quota.Quota, error) {
	q := f.q
	q.DayStart = quota.DayStart(now)
	q.ResetsAt = q.DayStart.Add(24 * time.Hour)
	return q, nil
}

func (f *fakeQuota) RecordTask(_ context.Context, _ string, _ time.Time, n int) { f.recorded += n }

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey: not found")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func starterQuota() *fakeQuota {
	tier := quota.TierFor(100)
	return &fakeQuota{q: quota.Quota{Tier: tier, DailyEmailLimit: 100, RemainingTasks: tier.MaxDailyAutomationSuggestions, CanCreateMoreTasks: true}}
}

func seededRepo() *memRepo {
	appt := now.Add(-3 * 24 * time.Hour)
	return &memRepo{
		contacts: []domain.Contact{
			{ID: "c1", FirstName: "Ada", AppointmentDate: &appt},
			{ID: "c2", FirstName: "Grace", AppointmentDate: &appt, HeatScore: 4},
		},
		campaigns: []domain.Campaign{
			{ID: "camp-1", Purpose: scoring.PurposeInitialFollowUp, Status: domain.CampaignActive},
		},
	}
}

// ===== GENERATE =====

func TestGenerate_RefusedNearEmailLimit(t *testing.T) {
	q := starterQuota()
	q.q.EmailsSentToday = 85
	q.q.IsNearEmailLimit = true
	repo := seededRepo()
	svc := NewService(repo, q, nil)

	recs, err := svc.Generate(context.Background(), "u1", PolicyPriority, now, false)

	assert.ErrorIs(t, err, quota.ErrNearEmailLimit)
	assert.Nil(t, recs)
	assert.Equal(t, 0, repo.listCalls, "no reads when refused")
}

func TestGenerate_UsesCacheUntilRefresh(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := seededRepo()
	svc := NewService(repo, starterQuota(), nil)
	svc.SetCache(NewRedisCache(client))
	ctx := context.Background()

	first, err := svc.Generate(ctx, "u1", PolicyPriority, now, false)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "camp-1", first[0].CampaignID)
	assert.Equal(t, []string{"c2", "c1"}, contactIDs(first[0]))

	key := CacheKey("u1", PolicyPriority, now)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 12*time.Hour, mr.TTL(key), "expires at end of UTC day")

	second, err := svc.Generate(ctx, "u1", PolicyPriority, now, false)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, contactIDs(first[0]), contactIDs(second[0]))

	_, err = svc.Generate(ctx, "u1", PolicyPriority, now, true)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls, "refresh bypasses cache")
}

func TestGenerate_ArchivesSnapshot(t *testing.T) {
	store := &fakeS3{objects: map[string][]byte{}}
	archive := NewS3ArchiveWithClient(store, "bucket", "")
	svc := NewService(seededRepo(), starterQuota(), nil)
	svc.SetArchiver(archive)

	_, err := svc.Generate(context.Background(), "u1", PolicyDiversified, now, false)
	require.NoError(t, err)

	assert.Contains(t, store.objects, "recommendations/u1/2025-06-15/diversified.json")

	recs, err := archive.Load(context.Background(), "u1", now, PolicyDiversified)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, scoring.PurposeInitialFollowUp, recs[0].Purpose)

	missing, err := archive.Load(context.Background(), "u2", now, PolicyDiversified)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHistory_ServesArchivedDays(t *testing.T) {
	store := &fakeS3{objects: map[string][]byte{}}
	svc := NewService(seededRepo(), starterQuota(), nil)
	svc.SetArchiver(NewS3ArchiveWithClient(store, "bucket", "crm"))
	ctx := context.Background()

	_, err := svc.Generate(ctx, "u1", PolicyPriority, now, false)
	require.NoError(t, err)

	recs, err := svc.History(ctx, "u1", PolicyPriority, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "camp-1", recs[0].CampaignID)

	_, err = svc.History(ctx, "u1", PolicyPriority, now.Add(-24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.History(ctx, "u1", PolicyDiversified, now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistory_CacheWithoutArchive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc := NewService(seededRepo(), starterQuota(), nil)
	ctx := context.Background()

	_, err := svc.History(ctx, "u1", PolicyPriority, now)
	assert.ErrorIs(t, err, ErrHistoryUnavailable)

	svc.SetCache(NewRedisCache(client))
	_, err = svc.Generate(ctx, "u1", PolicyPriority, now, false)
	require.NoError(t, err)
	recs, err := svc.History(ctx, "u1", PolicyPriority, now)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = svc.History(ctx, "u1", PolicyPriority, now.Add(-24*time.Hour))
	assert.ErrorIs(t, err, ErrHistoryUnavailable)
}

// ===== CREATE TASKS =====

func TestCreateTasks_CreatesPendingTasks(t *testing.T) {
	repo := seededRepo()
	q := starterQuota()
	svc := NewService(repo, q, nil)

	tasks, err := svc.CreateTasks(context.Background(), "u1", now)
	require.NoError(t, err)

	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, domain.TaskPending, task.Status)
	assert.Equal(t, domain.TaskCampaignEnrollment, task.Type)
	assert.Equal(t, "camp-1", task.Payload.CampaignID)
	assert.ElementsMatch(t, []string{"c1", "c2"}, task.Payload.ContactIDs)
	assert.Equal(t, "Enroll 2 contacts in "+scoring.PurposeInitialFollowUp, task.Title)
	assert.Len(t, repo.tasks, 1)
	assert.Equal(t, 1, q.recorded)
}

func TestCreateTasks_SkipsRecommendationsWithoutCampaign(t *testing.T) {
	repo := seededRepo()
	repo.campaigns = nil
	svc := NewService(repo, starterQuota(), nil)

	tasks, err := svc.CreateTasks(context.Background(), "u1", now)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateTasks_NoBudget(t *testing.T) {
	q := starterQuota()
	q.q.RemainingTasks = 0
	svc := NewService(seededRepo(), q, nil)

	_, err := svc.CreateTasks(context.Background(), "u1", now)
	assert.ErrorIs(t, err, quota.ErrTaskLimitReached)
}
