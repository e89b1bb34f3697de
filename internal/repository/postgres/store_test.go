package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func setupStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

var enrollmentCols = []string{"id", "user_id", "contact_id", "campaign_id", "status", "current_step",
	"last_step_sent", "waiting_for_next_step", "next_step_ready_at", "start_at",
	"queued_campaigns", "needs_repair", "last_error", "terminal_reason", "version",
	"created_at", "updated_at", "completed_at"}

// =============================================================================
// CAMPAIGNS
// =============================================================================

func TestGetCampaign_DecodesJSONColumns(t *testing.T) {
	s, mock := setupStore(t)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM crm_campaigns WHERE id").
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "description", "purpose",
			"steps", "status", "fields", "created_at", "updated_at"}).
			AddRow("k1", "u1", "Welcome", "", "Keep in Touch",
				[]byte(`[{"template_id":"t1","delay_seconds":0},{"template_id":"t2","delay_seconds":86400}]`),
				"active", []byte(`{"offer":"10%"}`), now, now))

	c, err := s.GetCampaign(context.Background(), "k1")
	require.NoError(t, err)
	require.Len(t, c.Steps, 2)
	assert.Equal(t, "t2", c.Steps[1].TemplateID)
	assert.Equal(t, 24*time.Hour, c.Steps[1].Delay())
	assert.Equal(t, "10%", c.Fields["offer"])
	assert.True(t, c.IsActive())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCampaign_NotFound(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectQuery("FROM crm_campaigns WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetCampaign(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// =============================================================================
// CONTACTS
// =============================================================================

var contactCols = []string{"id", "user_id", "email", "first_name", "last_name", "company", "phone",
	"heat_score", "appointment_date", "last_contact", "last_engagement", "status", "unsubscribed",
	"custom_fields", "created_at", "updated_at"}

func TestApplyEngagement_SingleStatement(t *testing.T) {
	s, mock := setupStore(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE crm_contacts SET\s+heat_score = GREATEST\(heat_score \+ \$2, \$3\),\s+unsubscribed = unsubscribed OR \$4`).
		WithArgs("c1", 1, domain.MinHeatScore, true, nil, now).
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("c1", "u1", "a@example.com", "Ada", "", "", "", 4, nil, nil, nil,
				"lead", true, []byte(`{}`), now, now))

	c, err := s.ApplyEngagement(context.Background(), "c1", domain.EngagementUpdate{HeatDelta: 1, Unsubscribe: true, At: now})
	require.NoError(t, err)
	assert.Equal(t, 4, c.HeatScore)
	assert.True(t, c.Unsubscribed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEngagement_NotFound(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectQuery("UPDATE crm_contacts").WillReturnRows(sqlmock.NewRows(contactCols))

	_, err := s.ApplyEngagement(context.Background(), "nope", domain.EngagementUpdate{HeatDelta: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// =============================================================================
// ENROLLMENTS
// =============================================================================

func TestCreateEnrollment_OpenPairClash(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectExec("INSERT INTO crm_enrollments").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	e := &domain.Enrollment{ID: "e2", ContactID: "c1", CampaignID: "k1", Status: domain.EnrollmentPending}
	err := s.CreateEnrollment(context.Background(), e)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Zero(t, e.Version)
}

func TestCreateEnrollment_SetsVersion(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectExec("INSERT INTO crm_enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	e := &domain.Enrollment{ID: "e1", ContactID: "c1", CampaignID: "k1", Status: domain.EnrollmentActive}
	require.NoError(t, s.CreateEnrollment(context.Background(), e))
	assert.Equal(t, int64(1), e.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEnrollment_BumpsVersion(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectExec("UPDATE crm_enrollments SET").
		WithArgs("e1", int64(3), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &domain.Enrollment{ID: "e1", Status: domain.EnrollmentActive, Version: 3}
	require.NoError(t, s.UpdateEnrollment(context.Background(), e))
	assert.Equal(t, int64(4), e.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEnrollment_StaleVersion(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectExec("UPDATE crm_enrollments SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	e := &domain.Enrollment{ID: "e1", Status: domain.EnrollmentActive, Version: 2}
	assert.ErrorIs(t, s.UpdateEnrollment(context.Background(), e), domain.ErrVersionConflict)
	assert.Equal(t, int64(2), e.Version, "version untouched on conflict")
}

func TestUpdateEnrollment_Missing(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectExec("UPDATE crm_enrollments SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	e := &domain.Enrollment{ID: "gone", Version: 1}
	assert.ErrorIs(t, s.UpdateEnrollment(context.Background(), e), domain.ErrNotFound)
}

func TestGetEnrollment_NullableColumns(t *testing.T) {
	s, mock := setupStore(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM crm_enrollments WHERE id").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(enrollmentCols).AddRow(
			"e1", "u1", "c1", "k1", "active", 1,
			int64(0), true, now, nil,
			[]byte(`[{"campaign_id":"k2","delay_days":3,"queued_at":"2025-03-01T09:00:00Z","reason":"same purpose"}]`),
			false, "", "", int64(5),
			now, now, nil))

	e, err := s.GetEnrollment(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, e.LastStepSent)
	assert.Equal(t, 0, *e.LastStepSent)
	assert.True(t, e.WaitingForNextStep)
	require.NotNil(t, e.NextStepReadyAt)
	assert.Nil(t, e.StartAt)
	assert.Nil(t, e.CompletedAt)
	require.Len(t, e.QueuedCampaigns, 1)
	assert.Equal(t, "k2", e.QueuedCampaigns[0].CampaignID)
	assert.Equal(t, int64(5), e.Version)
}

func TestListActiveEnrollmentIDs(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectQuery("SELECT id FROM crm_enrollments WHERE status IN").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("e1").AddRow("e3"))

	ids, err := s.ListActiveEnrollmentIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e3"}, ids)
}

// =============================================================================
// EMAIL LOG AND QUOTA COUNTS
// =============================================================================

func TestHasSentStep(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectQuery("FROM crm_email_logs").
		WithArgs("e1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	sent, err := s.HasSentStep(context.Background(), "e1", 2)
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestCountEmailsSince(t *testing.T) {
	s, mock := setupStore(t)
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("u1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountEmailsSince(context.Background(), "u1", since)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestCountEmailsSince_DBError(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(sql.ErrConnDone)

	_, err := s.CountEmailsSince(context.Background(), "u1", time.Now())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

// =============================================================================
// TASKS
// =============================================================================

func TestListTasks_StatusFilter(t *testing.T) {
	s, mock := setupStore(t)
	now := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM crm_automation_tasks WHERE user_id").
		WithArgs("u1", domain.TaskPending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "status", "title",
			"payload", "result", "version", "created_at", "reviewed_at", "reviewed_by", "executed_at"}).
			AddRow("t1", "u1", "campaign_enrollment", "pending", "Enroll 2 contacts in Keep in Touch",
				[]byte(`{"campaign_id":"k1","purpose":"Keep in Touch","contact_ids":["c1","c2"]}`),
				nil, int64(1), now, nil, "", nil))

	tasks, err := s.ListTasks(context.Background(), "u1", domain.TaskPending)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"c1", "c2"}, tasks[0].Payload.ContactIDs)
	assert.Nil(t, tasks[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTask_StaleVersion(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectExec("UPDATE crm_automation_tasks SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	task := &domain.AutomationTask{ID: "t1", Status: domain.TaskApproved, Version: 1}
	assert.ErrorIs(t, s.UpdateTask(context.Background(), task), domain.ErrVersionConflict)
}
