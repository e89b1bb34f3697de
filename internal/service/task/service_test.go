package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/mail"
	"github.com/ignite/enrollment-engine/internal/repository/memory"
	"github.com/ignite/enrollment-engine/internal/service/enrollment"
	"github.com/ignite/enrollment-engine/internal/service/quota"
)

var now = time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for _, id := range []string{"c1", "c2"} {
		require.NoError(t, store.SaveContact(ctx, &domain.Contact{ID: id, UserID: "u1", Email: id + "@example.com"}))
	}
	require.NoError(t, store.SaveContact(ctx, &domain.Contact{ID: "c3", UserID: "u1", Unsubscribed: true}))
	require.NoError(t, store.SaveCampaign(ctx, &domain.Campaign{
		ID: "camp-1", UserID: "u1", Status: domain.CampaignActive,
		Steps: []domain.Step{{TemplateID: "tpl"}},
	}))
	require.NoError(t, store.CreateTask(ctx, &domain.AutomationTask{
		ID: "task-1", UserID: "u1", Type: domain.TaskCampaignEnrollment, Status: domain.TaskPending,
		Payload:   domain.TaskPayload{CampaignID: "camp-1", ContactIDs: []string{"c1", "c2", "c3"}},
		CreatedAt: now,
	}))

	guard := quota.NewGuard(store, store, quota.Options{})
	engine := enrollment.NewEngine(store, mail.NewLogSender(), guard, nil, enrollment.Options{})
	return NewService(store, engine, guard), store
}

func TestApprove_ExecutesTask(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	got, err := svc.Approve(ctx, "u1", "task-1", "reviewer@acme.test", now)
	require.NoError(t, err)

	assert.Equal(t, domain.TaskExecuted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 2, got.Result.Enrolled)
	assert.Equal(t, 1, got.Result.Skipped)
	assert.Len(t, got.Result.Errors, 1)
	assert.Equal(t, "reviewer@acme.test", got.ReviewedBy)
	require.NotNil(t, got.ExecutedAt)

	open, _ := store.ListOpenEnrollments(ctx, "u1")
	assert.Len(t, open, 2)

	_, err = svc.Approve(ctx, "u1", "task-1", "again", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApprove_FailsWhenNothingEnrolled(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	camp, _ := store.GetCampaign(ctx, "camp-1")
	camp.Status = domain.CampaignArchived
	require.NoError(t, store.SaveCampaign(ctx, camp))

	got, err := svc.Approve(ctx, "u1", "task-1", "r", now)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, got.Status)
	assert.Equal(t, 3, got.Result.Skipped)
}

func TestApprove_QuotaRefusalLeavesTaskApproved(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	for i := 0; i < 90; i++ {
		require.NoError(t, store.AppendEmailLog(ctx, &domain.EmailLog{UserID: "u1", Status: domain.EmailLogSent, SentAt: now}))
	}

	got, err := svc.Approve(ctx, "u1", "task-1", "r", now)
	assert.ErrorIs(t, err, quota.ErrNearEmailLimit)
	require.NotNil(t, got)
	assert.Equal(t, domain.TaskApproved, got.Status)

	open, _ := store.ListOpenEnrollments(ctx, "u1")
	assert.Empty(t, open)

	// next day the approved task can be executed
	got, err = svc.Execute(ctx, "u1", "task-1", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.TaskExecuted, got.Status)
}

func TestReject(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Reject(ctx, "u2", "task-1", "r", now)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := svc.Reject(ctx, "u1", "task-1", "r", now)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskRejected, got.Status)

	_, err = svc.Approve(ctx, "u1", "task-1", "r", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	pending, err := svc.List(ctx, "u1", domain.TaskPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
