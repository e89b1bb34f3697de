package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/enrollment-engine/internal/domain"
)

const campaignColumns = `id, user_id, name, description, purpose, steps, status, fields, created_at, updated_at`

func scanCampaign(r rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.Purpose,
		jsonb{&c.Steps}, &c.Status, jsonb{&c.Fields}, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM crm_campaigns WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (s *Store) ListCampaigns(ctx context.Context, userID string) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM crm_campaigns WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_campaigns (`+campaignColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			purpose = EXCLUDED.purpose, steps = EXCLUDED.steps,
			status = EXCLUDED.status, fields = EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.UserID, c.Name, c.Description, c.Purpose,
		jsonb{c.Steps}, c.Status, jsonb{c.Fields}, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save campaign: %w", err)
	}
	return nil
}

func (s *Store) DeleteCampaign(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM crm_campaigns WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return nil
}

// ===== TEMPLATES =====

func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	t := &domain.EmailTemplate{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, subject, html_body, updated_at
		FROM crm_email_templates WHERE id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.Name, &t.Subject, &t.HTMLBody, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *Store) SaveTemplate(ctx context.Context, t *domain.EmailTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_email_templates (id, user_id, name, subject, html_body, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, subject = EXCLUDED.subject,
			html_body = EXCLUDED.html_body, updated_at = EXCLUDED.updated_at
	`, t.ID, t.UserID, t.Name, t.Subject, t.HTMLBody, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}
