package dynamo

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/enrollment-engine/internal/domain"
)

func newTestStore() (*Store, *fakeDynamo) {
	f := newFakeDynamo()
	return NewWithClient(f, "crm-test"), f
}

// ===== CONTACTS AND USERS =====

func TestContacts_RoundTripAndLookup(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	appt := time.Date(2025, 2, 20, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveContact(ctx, &domain.Contact{
		ID: "c2", UserID: "u1", Email: "Jane@Example.com", FirstName: "Jane",
		HeatScore: 7, AppointmentDate: &appt, Status: domain.ContactLead,
		CustomFields: map[string]string{"source": "expo"},
	}))
	require.NoError(t, s.SaveContact(ctx, &domain.Contact{ID: "c1", UserID: "u1", Email: "a@example.com"}))
	require.NoError(t, s.SaveContact(ctx, &domain.Contact{ID: "c9", UserID: "u2", Email: "z@example.com"}))

	got, err := s.GetContact(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 7, got.HeatScore)
	require.NotNil(t, got.AppointmentDate)
	assert.True(t, appt.Equal(*got.AppointmentDate))
	assert.Equal(t, "expo", got.CustomFields["source"])

	list, err := s.ListContacts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID)

	found, err := s.FindContactByEmail(ctx, "u1", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "c2", found.ID)

	_, err = s.GetContact(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SaveUserSettings(ctx, &domain.UserSettings{UserID: "u3", EmailProvider: "gmail"}))
	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids)
}

// interleavingAPI runs hook once, after the next read, to stand in for a
// writer that lands between ApplyEngagement's read and its put.
type interleavingAPI struct {
	*fakeDynamo
	hook func()
}

func (a *interleavingAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	out, err := a.fakeDynamo.GetItem(ctx, in, opts...)
	if h := a.hook; h != nil {
		a.hook = nil
		h()
	}
	return out, err
}

func TestApplyEngagement_RetriesOnConcurrentWrite(t *testing.T) {
	api := &interleavingAPI{fakeDynamo: newFakeDynamo()}
	s := NewWithClient(api, "crm-test")
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveContact(ctx, &domain.Contact{ID: "c1", UserID: "u1", HeatScore: 2}))

	api.hook = func() {
		_, err := s.ApplyEngagement(ctx, "c1", domain.EngagementUpdate{Unsubscribe: true, At: at})
		require.NoError(t, err)
	}
	c, err := s.ApplyEngagement(ctx, "c1", domain.EngagementUpdate{HeatDelta: 1, EngagedAt: &at, At: at})
	require.NoError(t, err)
	assert.True(t, c.Unsubscribed)
	assert.Equal(t, 3, c.HeatScore)

	got, err := s.GetContact(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.Unsubscribed)
	assert.Equal(t, 3, got.HeatScore)
	require.NotNil(t, got.LastEngagement)

	_, err = s.ApplyEngagement(ctx, "nope", domain.EngagementUpdate{HeatDelta: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ===== ENROLLMENTS =====

func TestEnrollment_VersionCheck(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	e := &domain.Enrollment{ID: "e1", UserID: "u1", ContactID: "c", CampaignID: "k", Status: domain.EnrollmentActive}
	require.NoError(t, s.CreateEnrollment(ctx, e))
	assert.Equal(t, int64(1), e.Version)

	a, err := s.GetEnrollment(ctx, "e1")
	require.NoError(t, err)
	b, _ := s.GetEnrollment(ctx, "e1")

	a.CurrentStep = 1
	require.NoError(t, s.UpdateEnrollment(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.CurrentStep = 5
	assert.ErrorIs(t, s.UpdateEnrollment(ctx, b), domain.ErrVersionConflict)

	got, _ := s.GetEnrollment(ctx, "e1")
	assert.Equal(t, 1, got.CurrentStep)

	assert.ErrorIs(t, s.UpdateEnrollment(ctx, &domain.Enrollment{ID: "missing", Version: 1}), domain.ErrNotFound)
}

func TestEnrollment_OneOpenPerPair(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	first := &domain.Enrollment{ID: "e1", UserID: "u1", ContactID: "c", CampaignID: "k", Status: domain.EnrollmentActive}
	require.NoError(t, s.CreateEnrollment(ctx, first))

	dup := &domain.Enrollment{ID: "e2", UserID: "u1", ContactID: "c", CampaignID: "k", Status: domain.EnrollmentPending}
	assert.ErrorIs(t, s.CreateEnrollment(ctx, dup), domain.ErrAlreadyExists)

	first.Status = domain.EnrollmentCompleted
	require.NoError(t, s.UpdateEnrollment(ctx, first))
	require.NoError(t, s.CreateEnrollment(ctx, dup), "slot frees once terminal")

	ids, err := s.ListActiveEnrollmentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e2"}, ids)

	open, err := s.ListOpenEnrollmentsForContact(ctx, "u1", "c")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "e2", open[0].ID)
}

func TestEnrollment_TakesOverStaleReservation(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()
	old := &domain.Enrollment{ID: "e1", UserID: "u1", ContactID: "c", CampaignID: "k", Status: domain.EnrollmentActive}
	require.NoError(t, s.CreateEnrollment(ctx, old))

	// Simulate a crash between the terminal write and the pair release.
	require.NoError(t, s.putItem(ctx, newEnrollmentItem(&domain.Enrollment{
		ID: "e1", UserID: "u1", ContactID: "c", CampaignID: "k", Status: domain.EnrollmentFailed, Version: 2,
	}), "", nil))
	_, reserved := f.items[pairPK("c", "k")+"|OPEN"]
	require.True(t, reserved)

	next := &domain.Enrollment{ID: "e2", UserID: "u1", ContactID: "c", CampaignID: "k", Status: domain.EnrollmentPending}
	require.NoError(t, s.CreateEnrollment(ctx, next))
	assert.Equal(t, "e2", sval(f.items[pairPK("c", "k")+"|OPEN"]["EnrollmentID"]))
}

func TestEnrollment_QueuedCampaignsSurvive(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	ready := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	zero := 0
	e := &domain.Enrollment{
		ID: "e1", UserID: "u1", ContactID: "c", CampaignID: "k", Status: domain.EnrollmentActive,
		LastStepSent: &zero, WaitingForNextStep: true, NextStepReadyAt: &ready,
		QueuedCampaigns: []domain.QueuedCampaign{{CampaignID: "k2", DelayDays: 3, Reason: "same purpose"}},
	}
	require.NoError(t, s.CreateEnrollment(ctx, e))

	got, err := s.GetEnrollment(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got.LastStepSent)
	assert.Equal(t, 0, *got.LastStepSent)
	assert.True(t, ready.Equal(*got.NextStepReadyAt))
	require.Len(t, got.QueuedCampaigns, 1)
	assert.Equal(t, 3, got.QueuedCampaigns[0].DelayDays)
}

// ===== EMAIL LOG =====

func TestEmailLog_SentStepAndDailyCount(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	logs := []domain.EmailLog{
		{ID: "l1", UserID: "u1", EnrollmentID: "e1", Step: 0, Status: domain.EmailLogSent, SentAt: day.Add(-time.Hour)},
		{ID: "l2", UserID: "u1", EnrollmentID: "e1", Step: 1, Status: domain.EmailLogFailed, SentAt: day.Add(time.Hour)},
		{ID: "l3", UserID: "u1", EnrollmentID: "e2", Step: 0, Status: domain.EmailLogSent, SentAt: day.Add(2 * time.Hour)},
		{ID: "l4", UserID: "u1", EnrollmentID: "e3", Step: 10, Status: domain.EmailLogSent, SentAt: day.Add(3 * time.Hour)},
	}
	for i := range logs {
		require.NoError(t, s.AppendEmailLog(ctx, &logs[i]))
	}

	sent, err := s.HasSentStep(ctx, "e1", 0)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = s.HasSentStep(ctx, "e1", 1)
	require.NoError(t, err)
	assert.False(t, sent, "failed attempts do not count")

	sent, err = s.HasSentStep(ctx, "e3", 1)
	require.NoError(t, err)
	assert.False(t, sent, "step 1 must not match step 10")

	n, err := s.CountEmailsSince(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// ===== TASKS =====

func TestTasks_NewestFirstAndVersioned(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)

	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.CreateTask(ctx, &domain.AutomationTask{
			ID: id, UserID: "u1", Status: domain.TaskPending, CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Payload: domain.TaskPayload{ContactIDs: []string{"c1"}},
		}))
	}
	assert.ErrorIs(t, s.CreateTask(ctx, &domain.AutomationTask{ID: "t1", UserID: "u1"}), domain.ErrAlreadyExists)

	task, err := s.GetTask(ctx, "t2")
	require.NoError(t, err)
	task.Status = domain.TaskRejected
	require.NoError(t, s.UpdateTask(ctx, task))
	assert.Equal(t, int64(2), task.Version)

	stale := *task
	stale.Version = 1
	assert.ErrorIs(t, s.UpdateTask(ctx, &stale), domain.ErrVersionConflict)

	pending, err := s.ListTasks(ctx, "u1", domain.TaskPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "t3", pending[0].ID)
	assert.Equal(t, "t1", pending[1].ID)

	n, err := s.CountTasksSince(ctx, "u1", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
