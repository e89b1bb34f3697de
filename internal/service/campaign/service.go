package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osteele/liquid"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/logger"
)

// transitions lists the allowed status changes. Archived is terminal.
var transitions = map[domain.CampaignStatus][]domain.CampaignStatus{
	domain.CampaignDraft:  {domain.CampaignActive, domain.CampaignArchived},
	domain.CampaignActive: {domain.CampaignPaused, domain.CampaignArchived},
	domain.CampaignPaused: {domain.CampaignActive, domain.CampaignArchived},
}

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo   Repository
	liquid *liquid.Engine
	log    *logger.Logger
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo:   repo,
		liquid: liquid.NewEngine(),
		log:    logger.With("component", "campaign"),
	}
}

// Get returns one of the user's campaigns.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// List returns the user's campaigns, optionally filtered by status.
func (s *Service) List(ctx context.Context, userID string, status domain.CampaignStatus) ([]domain.Campaign, error) {
	all, err := s.repo.ListCampaigns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	if status == "" {
		return all, nil
	}
	out := all[:0]
	for _, c := range all {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput, now time.Time) (*domain.Campaign, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidCampaign)
	}
	if err := s.checkSteps(ctx, userID, in.Steps); err != nil {
		return nil, err
	}

	c := &domain.Campaign{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Purpose:     strings.TrimSpace(in.Purpose),
		Steps:       in.Steps,
		Fields:      in.Fields,
		Status:      domain.CampaignDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.SaveCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("save campaign: %w", err)
	}
	s.log.Info("campaign created", "user_id", userID, "campaign_id", c.ID, "steps", len(c.Steps))
	return c, nil
}

// Update applies the non-nil fields. Archived campaigns are read-only.
// Step edits apply to open enrollments from their next step on.
func (s *Service) Update(ctx context.Context, userID, id string, u UpdateFields, now time.Time) (*domain.Campaign, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.CampaignArchived {
		return nil, fmt.Errorf("%w: campaign is archived", ErrInvalidTransition)
	}

	if u.Name != nil {
		if strings.TrimSpace(*u.Name) == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidCampaign)
		}
		c.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.Purpose != nil {
		c.Purpose = strings.TrimSpace(*u.Purpose)
	}
	if u.Steps != nil {
		if err := s.checkSteps(ctx, userID, *u.Steps); err != nil {
			return nil, err
		}
		if c.Status == domain.CampaignActive && len(*u.Steps) == 0 {
			return nil, fmt.Errorf("%w: an active campaign needs at least one step", ErrInvalidCampaign)
		}
		c.Steps = *u.Steps
	}
	if u.Fields != nil {
		c.Fields = *u.Fields
	}
	c.UpdatedAt = now

	if err := s.repo.SaveCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("save campaign: %w", err)
	}
	return c, nil
}

// SetStatus moves a campaign through its lifecycle. Activation requires at
// least one step.
func (s *Service) SetStatus(ctx context.Context, userID, id string, to domain.CampaignStatus, now time.Time) (*domain.Campaign, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !allowed(c.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	if to == domain.CampaignActive && len(c.Steps) == 0 {
		return nil, fmt.Errorf("%w: an active campaign needs at least one step", ErrInvalidCampaign)
	}

	from := c.Status
	c.Status = to
	c.UpdatedAt = now
	if err := s.repo.SaveCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("save campaign: %w", err)
	}
	s.log.Info("campaign status changed", "campaign_id", id, "from", string(from), "to", string(to))
	return c, nil
}

func allowed(from, to domain.CampaignStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Delete removes a draft or archived campaign that no open enrollment uses.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignArchived {
		return fmt.Errorf("%w: only draft or archived campaigns can be deleted", ErrInvalidTransition)
	}

	open, err := s.repo.ListOpenEnrollments(ctx, userID)
	if err != nil {
		return fmt.Errorf("list open enrollments: %w", err)
	}
	for _, e := range open {
		if e.CampaignID == id {
			return ErrInUse
		}
		for _, q := range e.QueuedCampaigns {
			if q.CampaignID == id {
				return ErrInUse
			}
		}
	}

	if err := s.repo.DeleteCampaign(ctx, id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	s.log.Info("campaign deleted", "user_id", userID, "campaign_id", id)
	return nil
}

func (s *Service) checkSteps(ctx context.Context, userID string, steps []domain.Step) error {
	for i, st := range steps {
		if st.DelaySeconds < 0 {
			return fmt.Errorf("%w: step %d has a negative delay", ErrInvalidCampaign, i)
		}
		if st.TemplateID == "" {
			return fmt.Errorf("%w: step %d has no template", ErrInvalidCampaign, i)
		}
		t, err := s.repo.GetTemplate(ctx, st.TemplateID)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && t.UserID != userID) {
			return fmt.Errorf("%w: step %d template %s not found", ErrInvalidCampaign, i, st.TemplateID)
		}
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		if st.Subject != "" {
			if _, err := s.liquid.ParseString(st.Subject); err != nil {
				return fmt.Errorf("%w: step %d subject: %v", ErrInvalidCampaign, i, err)
			}
		}
	}
	return nil
}

// ===== TEMPLATES =====

// GetTemplate returns one of the user's templates.
func (s *Service) GetTemplate(ctx context.Context, userID, id string) (*domain.EmailTemplate, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

// SaveTemplate creates a template when id is empty and replaces the user's
// template otherwise. Subject and body must parse as Liquid.
func (s *Service) SaveTemplate(ctx context.Context, userID, id string, in TemplateInput, now time.Time) (*domain.EmailTemplate, error) {
	if strings.TrimSpace(in.Subject) == "" || strings.TrimSpace(in.HTMLBody) == "" {
		return nil, fmt.Errorf("%w: subject and html_body are required", ErrInvalidTemplate)
	}
	if _, err := s.liquid.ParseString(in.Subject); err != nil {
		return nil, fmt.Errorf("%w: subject: %v", ErrInvalidTemplate, err)
	}
	if _, err := s.liquid.ParseString(in.HTMLBody); err != nil {
		return nil, fmt.Errorf("%w: html_body: %v", ErrInvalidTemplate, err)
	}

	if id == "" {
		id = uuid.New().String()
	} else if _, err := s.GetTemplate(ctx, userID, id); err != nil {
		return nil, err
	}

	t := &domain.EmailTemplate{
		ID:        id,
		UserID:    userID,
		Name:      in.Name,
		Subject:   in.Subject,
		HTMLBody:  in.HTMLBody,
		UpdatedAt: now,
	}
	if err := s.repo.SaveTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	return t, nil
}
