package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
)

const enrollmentColumns = `id, user_id, contact_id, campaign_id, status, current_step,
	last_step_sent, waiting_for_next_step, next_step_ready_at, start_at,
	queued_campaigns, needs_repair, last_error, terminal_reason, version,
	created_at, updated_at, completed_at`

const openStatuses = `('pending', 'active')`

func scanEnrollment(r rowScanner) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	err := r.Scan(&e.ID, &e.UserID, &e.ContactID, &e.CampaignID, &e.Status, &e.CurrentStep,
		&e.LastStepSent, &e.WaitingForNextStep, &e.NextStepReadyAt, &e.StartAt,
		jsonb{&e.QueuedCampaigns}, &e.NeedsRepair, &e.LastError, &e.TerminalReason, &e.Version,
		&e.CreatedAt, &e.UpdatedAt, &e.CompletedAt)
	return e, err
}

func (s *Store) GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error) {
	e, err := scanEnrollment(s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM crm_enrollments WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

// CreateEnrollment inserts e at version 1. The partial unique index on open
// contact/campaign pairs turns a duplicate into domain.ErrAlreadyExists.
func (s *Store) CreateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16, $17)
	`, e.ID, e.UserID, e.ContactID, e.CampaignID, e.Status, e.CurrentStep,
		e.LastStepSent, e.WaitingForNextStep, e.NextStepReadyAt, e.StartAt,
		jsonb{queuedOrEmpty(e.QueuedCampaigns)}, e.NeedsRepair, e.LastError, e.TerminalReason,
		e.CreatedAt, e.UpdatedAt, e.CompletedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	e.Version = 1
	return nil
}

// UpdateEnrollment writes e only if the stored version still matches
// e.Version, then bumps the version on e.
func (s *Store) UpdateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crm_enrollments SET
			status = $3, current_step = $4, last_step_sent = $5,
			waiting_for_next_step = $6, next_step_ready_at = $7, start_at = $8,
			queued_campaigns = $9, needs_repair = $10, last_error = $11,
			terminal_reason = $12, updated_at = $13, completed_at = $14,
			version = version + 1
		WHERE id = $1 AND version = $2
	`, e.ID, e.Version, e.Status, e.CurrentStep, e.LastStepSent,
		e.WaitingForNextStep, e.NextStepReadyAt, e.StartAt,
		jsonb{queuedOrEmpty(e.QueuedCampaigns)}, e.NeedsRepair, e.LastError,
		e.TerminalReason, e.UpdatedAt, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	if err := s.checkVersioned(ctx, res, "crm_enrollments", e.ID); err != nil {
		return err
	}
	e.Version++
	return nil
}

// checkVersioned distinguishes a missing row from a stale version when a
// compare-and-set update touched nothing.
func (s *Store) checkVersioned(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrVersionConflict
}

func queuedOrEmpty(q []domain.QueuedCampaign) []domain.QueuedCampaign {
	if q == nil {
		return []domain.QueuedCampaign{}
	}
	return q
}

// ListOpenEnrollments returns the user's pending and active enrollments.
func (s *Store) ListOpenEnrollments(ctx context.Context, userID string) ([]domain.Enrollment, error) {
	return s.queryEnrollments(ctx, `SELECT `+enrollmentColumns+` FROM crm_enrollments
		WHERE user_id = $1 AND status IN `+openStatuses+` ORDER BY id`, userID)
}

func (s *Store) ListOpenEnrollmentsForContact(ctx context.Context, userID, contactID string) ([]domain.Enrollment, error) {
	return s.queryEnrollments(ctx, `SELECT `+enrollmentColumns+` FROM crm_enrollments
		WHERE user_id = $1 AND contact_id = $2 AND status IN `+openStatuses+` ORDER BY id`, userID, contactID)
}

// ListActiveEnrollmentIDs returns every non-terminal enrollment id.
func (s *Store) ListActiveEnrollmentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM crm_enrollments WHERE status IN `+openStatuses+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan enrollment id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) queryEnrollments(ctx context.Context, q string, args ...any) ([]domain.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ===== EMAIL LOG =====

func (s *Store) AppendEmailLog(ctx context.Context, l *domain.EmailLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_email_logs (id, user_id, enrollment_id, contact_id, campaign_id,
			step, to_address, subject, provider_id, status, error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, l.ID, l.UserID, l.EnrollmentID, l.ContactID, l.CampaignID,
		l.Step, l.ToAddress, l.Subject, l.ProviderID, l.Status, l.Error, l.SentAt)
	if err != nil {
		return fmt.Errorf("append email log: %w", err)
	}
	return nil
}

func (s *Store) HasSentStep(ctx context.Context, enrollmentID string, step int) (bool, error) {
	var sent bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM crm_email_logs
		WHERE enrollment_id = $1 AND step = $2 AND status = 'sent')
	`, enrollmentID, step).Scan(&sent)
	if err != nil {
		return false, fmt.Errorf("has sent step: %w", err)
	}
	return sent, nil
}

func (s *Store) ListEmailLogs(ctx context.Context, enrollmentID string) ([]domain.EmailLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, enrollment_id, contact_id, campaign_id, step, to_address,
		       subject, provider_id, status, error, sent_at
		FROM crm_email_logs WHERE enrollment_id = $1 ORDER BY sent_at, id
	`, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailLog
	for rows.Next() {
		var l domain.EmailLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.EnrollmentID, &l.ContactID, &l.CampaignID,
			&l.Step, &l.ToAddress, &l.Subject, &l.ProviderID, &l.Status, &l.Error, &l.SentAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) CountEmailsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM crm_email_logs
		WHERE user_id = $1 AND status = 'sent' AND sent_at >= $2
	`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count emails: %w", err)
	}
	return n, nil
}
