package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
)

const taskColumns = `id, user_id, type, status, title, payload, result, version,
	created_at, reviewed_at, reviewed_by, executed_at`

func scanTask(r rowScanner) (*domain.AutomationTask, error) {
	t := &domain.AutomationTask{}
	err := r.Scan(&t.ID, &t.UserID, &t.Type, &t.Status, &t.Title,
		jsonb{&t.Payload}, jsonb{&t.Result}, &t.Version,
		&t.CreatedAt, &t.ReviewedAt, &t.ReviewedBy, &t.ExecutedAt)
	return t, err
}

// resultValue keeps a nil result as SQL NULL rather than JSON null.
func resultValue(r *domain.TaskResult) any {
	if r == nil {
		return nil
	}
	return jsonb{r}
}

func (s *Store) CreateTask(ctx context.Context, t *domain.AutomationTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_automation_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10, $11)
	`, t.ID, t.UserID, t.Type, t.Status, t.Title,
		jsonb{t.Payload}, resultValue(t.Result),
		t.CreatedAt, t.ReviewedAt, t.ReviewedBy, t.ExecutedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	t.Version = 1
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*domain.AutomationTask, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM crm_automation_tasks WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *domain.AutomationTask) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crm_automation_tasks SET
			status = $3, title = $4, payload = $5, result = $6,
			reviewed_at = $7, reviewed_by = $8, executed_at = $9,
			version = version + 1
		WHERE id = $1 AND version = $2
	`, t.ID, t.Version, t.Status, t.Title, jsonb{t.Payload}, resultValue(t.Result),
		t.ReviewedAt, t.ReviewedBy, t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if err := s.checkVersioned(ctx, res, "crm_automation_tasks", t.ID); err != nil {
		return err
	}
	t.Version++
	return nil
}

// ListTasks returns the user's tasks newest first, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, userID string, status domain.TaskStatus) ([]domain.AutomationTask, error) {
	q := `SELECT ` + taskColumns + ` FROM crm_automation_tasks WHERE user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.AutomationTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) CountTasksSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM crm_automation_tasks WHERE user_id = $1 AND created_at >= $2
	`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}
