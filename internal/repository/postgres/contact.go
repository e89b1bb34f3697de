package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/enrollment-engine/internal/domain"
)

const contactColumns = `id, user_id, email, first_name, last_name,
	COALESCE(company, ''), COALESCE(phone, ''), heat_score,
	appointment_date, last_contact, last_engagement, status, unsubscribed,
	custom_fields, created_at, updated_at`

func scanContact(r rowScanner) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := r.Scan(&c.ID, &c.UserID, &c.Email, &c.FirstName, &c.LastName,
		&c.Company, &c.Phone, &c.HeatScore,
		&c.AppointmentDate, &c.LastContact, &c.LastEngagement, &c.Status, &c.Unsubscribed,
		jsonb{&c.CustomFields}, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	c, err := scanContact(s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM crm_contacts WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func (s *Store) FindContactByEmail(ctx context.Context, userID, email string) (*domain.Contact, error) {
	c, err := scanContact(s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM crm_contacts
		 WHERE user_id = $1 AND LOWER(email) = LOWER($2)
		 ORDER BY created_at LIMIT 1`, userID, email))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find contact by email: %w", err)
	}
	return c, nil
}

func (s *Store) ListContacts(ctx context.Context, userID string) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM crm_contacts WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) SaveContact(ctx context.Context, c *domain.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_contacts (id, user_id, email, first_name, last_name, company, phone,
			heat_score, appointment_date, last_contact, last_engagement, status,
			unsubscribed, custom_fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email, first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name, company = EXCLUDED.company,
			phone = EXCLUDED.phone, heat_score = EXCLUDED.heat_score,
			appointment_date = EXCLUDED.appointment_date,
			last_contact = EXCLUDED.last_contact,
			last_engagement = EXCLUDED.last_engagement,
			status = EXCLUDED.status, unsubscribed = EXCLUDED.unsubscribed,
			custom_fields = EXCLUDED.custom_fields, updated_at = EXCLUDED.updated_at
	`, c.ID, c.UserID, c.Email, c.FirstName, c.LastName, c.Company, c.Phone,
		c.HeatScore, c.AppointmentDate, c.LastContact, c.LastEngagement, c.Status,
		c.Unsubscribed, jsonb{c.CustomFields}, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save contact: %w", err)
	}
	return nil
}

// ApplyEngagement updates only the engagement columns in one statement, so
// overlapping webhook events compose instead of overwriting each other.
func (s *Store) ApplyEngagement(ctx context.Context, id string, u domain.EngagementUpdate) (*domain.Contact, error) {
	c, err := scanContact(s.db.QueryRowContext(ctx, `
		UPDATE crm_contacts SET
			heat_score = GREATEST(heat_score + $2, $3),
			unsubscribed = unsubscribed OR $4,
			last_engagement = GREATEST(last_engagement, $5::timestamptz),
			updated_at = GREATEST(updated_at, $6)
		WHERE id = $1
		RETURNING `+contactColumns,
		id, u.HeatDelta, domain.MinHeatScore, u.Unsubscribe, u.EngagedAt, u.At))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("apply engagement: %w", err)
	}
	return c, nil
}

// ===== USER SETTINGS =====

func (s *Store) GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	us := &domain.UserSettings{}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email_provider, custom_daily_email_limit, timezone
		FROM crm_user_settings WHERE user_id = $1
	`, userID).Scan(&us.UserID, &us.EmailProvider, &us.CustomDailyEmailLimit, &us.Timezone)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user settings: %w", err)
	}
	return us, nil
}

func (s *Store) SaveUserSettings(ctx context.Context, us *domain.UserSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_user_settings (user_id, email_provider, custom_daily_email_limit, timezone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email_provider = EXCLUDED.email_provider,
			custom_daily_email_limit = EXCLUDED.custom_daily_email_limit,
			timezone = EXCLUDED.timezone
	`, us.UserID, us.EmailProvider, us.CustomDailyEmailLimit, us.Timezone)
	if err != nil {
		return fmt.Errorf("save user settings: %w", err)
	}
	return nil
}

// ListUserIDs returns every user that owns contacts or settings.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM crm_user_settings
		UNION
		SELECT DISTINCT user_id FROM crm_contacts
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
