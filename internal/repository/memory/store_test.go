package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/enrollment-engine/internal/domain"
)

func TestEnrollment_VersionCheck(t *testing.T) {
	s := New()
	ctx := context.Background()
	e := &domain.Enrollment{ID: "e1", ContactID: "c", CampaignID: "k", Status: domain.EnrollmentActive}
	require.NoError(t, s.CreateEnrollment(ctx, e))
	assert.Equal(t, int64(1), e.Version)

	a, _ := s.GetEnrollment(ctx, "e1")
	b, _ := s.GetEnrollment(ctx, "e1")

	a.CurrentStep = 1
	require.NoError(t, s.UpdateEnrollment(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.CurrentStep = 5
	assert.ErrorIs(t, s.UpdateEnrollment(ctx, b), domain.ErrVersionConflict)

	got, _ := s.GetEnrollment(ctx, "e1")
	assert.Equal(t, 1, got.CurrentStep)
}

func TestEnrollment_OneOpenPerPair(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := &domain.Enrollment{ID: "e1", ContactID: "c", CampaignID: "k", Status: domain.EnrollmentActive}
	require.NoError(t, s.CreateEnrollment(ctx, first))

	dup := &domain.Enrollment{ID: "e2", ContactID: "c", CampaignID: "k", Status: domain.EnrollmentPending}
	assert.ErrorIs(t, s.CreateEnrollment(ctx, dup), domain.ErrAlreadyExists)

	first.Status = domain.EnrollmentCompleted
	require.NoError(t, s.UpdateEnrollment(ctx, first))
	assert.NoError(t, s.CreateEnrollment(ctx, dup), "slot frees once terminal")

	ids, err := s.ListActiveEnrollmentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e2"}, ids)
}

func TestGetEnrollment_ReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateEnrollment(ctx, &domain.Enrollment{ID: "e1", Status: domain.EnrollmentActive}))

	e, _ := s.GetEnrollment(ctx, "e1")
	e.CurrentStep = 9

	again, _ := s.GetEnrollment(ctx, "e1")
	assert.Equal(t, 0, again.CurrentStep)
}

func TestCounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendEmailLog(ctx, &domain.EmailLog{UserID: "u", EnrollmentID: "e", Step: 0, Status: domain.EmailLogSent, SentAt: day.Add(time.Hour)}))
	require.NoError(t, s.AppendEmailLog(ctx, &domain.EmailLog{UserID: "u", EnrollmentID: "e", Step: 1, Status: domain.EmailLogFailed, SentAt: day.Add(time.Hour)}))
	require.NoError(t, s.AppendEmailLog(ctx, &domain.EmailLog{UserID: "u", Status: domain.EmailLogSent, SentAt: day.Add(-time.Hour)}))

	n, err := s.CountEmailsSince(ctx, "u", day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sent, _ := s.HasSentStep(ctx, "e", 0)
	assert.True(t, sent)
	sent, _ = s.HasSentStep(ctx, "e", 1)
	assert.False(t, sent)

	require.NoError(t, s.CreateTask(ctx, &domain.AutomationTask{ID: "t1", UserID: "u", CreatedAt: day}))
	n, err = s.CountTasksSince(ctx, "u", day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTask_VersionCheck(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, &domain.AutomationTask{ID: "t1", UserID: "u", Status: domain.TaskPending}))

	a, _ := s.GetTask(ctx, "t1")
	b, _ := s.GetTask(ctx, "t1")
	a.Status = domain.TaskApproved
	require.NoError(t, s.UpdateTask(ctx, a))
	b.Status = domain.TaskRejected
	assert.ErrorIs(t, s.UpdateTask(ctx, b), domain.ErrVersionConflict)

	pending, _ := s.ListTasks(ctx, "u", domain.TaskPending)
	assert.Empty(t, pending)
}
