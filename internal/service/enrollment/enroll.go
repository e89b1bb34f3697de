package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// EnrollRequest asks for a contact to be put into a campaign.
type EnrollRequest struct {
	ContactID  string        `json:"contact_id"`
	CampaignID string        `json:"campaign_id"`
	StartDelay time.Duration `json:"-"`
	DelayDays  int           `json:"delay_days,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

func (r EnrollRequest) delay() time.Duration {
	if r.StartDelay > 0 {
		return r.StartDelay
	}
	if r.DelayDays > 0 {
		return time.Duration(r.DelayDays) * 24 * time.Hour
	}
	return 0
}

// EnrollResult is what Enroll did. Exactly one of Created and Queued is set.
type EnrollResult struct {
	Enrollment *domain.Enrollment `json:"enrollment"`
	Created    bool               `json:"created"`
	Queued     bool               `json:"queued"`
}

// Enroll creates an enrollment, or queues the campaign behind an open
// enrollment of the same campaign or purpose. Queued campaigns are kept for
// review and are not started automatically.
func (en *Engine) Enroll(ctx context.Context, userID string, req EnrollRequest, now time.Time) (*EnrollResult, error) {
	if userID == "" || req.ContactID == "" || req.CampaignID == "" {
		return nil, ErrInvalidRequest
	}
	if req.StartDelay < 0 || req.DelayDays < 0 {
		return nil, fmt.Errorf("%w: negative start delay", ErrInvalidRequest)
	}

	contact, err := en.repo.GetContact(ctx, req.ContactID)
	if err != nil {
		return nil, fmt.Errorf("contact %s: %w", req.ContactID, err)
	}
	if contact.UserID != userID {
		return nil, fmt.Errorf("contact %s: %w", req.ContactID, domain.ErrNotFound)
	}
	if contact.Unsubscribed {
		return nil, ErrContactUnsubscribed
	}

	campaign, err := en.repo.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign %s: %w", req.CampaignID, err)
	}
	if campaign.UserID != userID {
		return nil, fmt.Errorf("campaign %s: %w", req.CampaignID, domain.ErrNotFound)
	}
	if !campaign.IsActive() {
		return nil, ErrCampaignInactive
	}

	lock := en.locks.Lock("enroll:contact:"+req.ContactID, en.opts.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire contact lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockBusy
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			en.log.Warn("release contact lock failed", "contact_id", req.ContactID, "error", err.Error())
		}
	}()

	open, err := en.repo.ListOpenEnrollmentsForContact(ctx, userID, req.ContactID)
	if err != nil {
		return nil, fmt.Errorf("list open enrollments: %w", err)
	}
	for i := range open {
		existing := &open[i]
		overlaps, err := en.overlaps(ctx, existing, campaign)
		if err != nil {
			return nil, err
		}
		if overlaps {
			return en.queue(ctx, existing.ID, campaign, req, now)
		}
	}

	e := newEnrollment(userID, req, campaign, now)
	if err := en.repo.CreateEnrollment(ctx, e); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("create enrollment: %w", err)
	}

	en.log.Info("contact enrolled",
		"enrollment_id", e.ID, "contact_id", e.ContactID, "campaign_id", e.CampaignID,
		"status", string(e.Status), "reason", req.Reason)
	return &EnrollResult{Enrollment: e, Created: true}, nil
}

// overlaps reports whether an open enrollment blocks a new one: same
// campaign, or a campaign with the same purpose.
func (en *Engine) overlaps(ctx context.Context, existing *domain.Enrollment, campaign *domain.Campaign) (bool, error) {
	if existing.CampaignID == campaign.ID {
		return true, nil
	}
	if strings.TrimSpace(campaign.Purpose) == "" {
		return false, nil
	}
	other, err := en.repo.GetCampaign(ctx, existing.CampaignID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load campaign %s: %w", existing.CampaignID, err)
	}
	return strings.EqualFold(other.Purpose, campaign.Purpose), nil
}

func (en *Engine) queue(ctx context.Context, enrollmentID string, campaign *domain.Campaign, req EnrollRequest, now time.Time) (*EnrollResult, error) {
	lock := en.locks.Lock("enrollment:"+enrollmentID, en.opts.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire enrollment lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockBusy
	}
	defer func() { _ = lock.Release(context.Background()) }()

	e, err := en.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	for _, q := range e.QueuedCampaigns {
		if q.CampaignID == campaign.ID {
			return &EnrollResult{Enrollment: e, Queued: true}, nil
		}
	}

	reason := req.Reason
	if reason == "" {
		reason = "contact already in an open sequence"
	}
	e.QueuedCampaigns = append(e.QueuedCampaigns, domain.QueuedCampaign{
		CampaignID: campaign.ID,
		DelayDays:  int(req.delay() / (24 * time.Hour)),
		QueuedAt:   now,
		Reason:     reason,
	})
	e.UpdatedAt = now
	if err := en.repo.UpdateEnrollment(ctx, e); err != nil {
		return nil, fmt.Errorf("queue campaign: %w", err)
	}

	en.log.Info("campaign queued behind open enrollment",
		"enrollment_id", e.ID, "queued_campaign_id", campaign.ID)
	return &EnrollResult{Enrollment: e, Queued: true}, nil
}

func newEnrollment(userID string, req EnrollRequest, campaign *domain.Campaign, now time.Time) *domain.Enrollment {
	e := &domain.Enrollment{
		ID:         uuid.New().String(),
		UserID:     userID,
		ContactID:  req.ContactID,
		CampaignID: campaign.ID,
		Status:     domain.EnrollmentActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	switch {
	case req.delay() > 0:
		start := now.Add(req.delay())
		e.Status = domain.EnrollmentPending
		e.StartAt = &start
	case len(campaign.Steps) == 0:
		e.Status = domain.EnrollmentCompleted
		e.TerminalReason = "campaign has no steps"
		e.CompletedAt = &now
	default:
		if d := campaign.Steps[0].Delay(); d > 0 {
			ready := now.Add(d)
			e.WaitingForNextStep = true
			e.NextStepReadyAt = &ready
		}
	}
	return e
}

// Get returns an enrollment owned by userID.
func (en *Engine) Get(ctx context.Context, userID, enrollmentID string) (*domain.Enrollment, error) {
	e, err := en.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

// Logs returns every send attempt for an enrollment owned by userID, oldest
// first. Failed attempts keep their provider error.
func (en *Engine) Logs(ctx context.Context, userID, enrollmentID string) ([]domain.EmailLog, error) {
	if _, err := en.Get(ctx, userID, enrollmentID); err != nil {
		return nil, err
	}
	logs, err := en.repo.ListEmailLogs(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	return logs, nil
}

// Cancel removes an enrollment from its campaign.
func (en *Engine) Cancel(ctx context.Context, userID, enrollmentID, reason string, now time.Time) (*domain.Enrollment, error) {
	lock := en.locks.Lock("enrollment:"+enrollmentID, en.opts.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire enrollment lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockBusy
	}
	defer func() { _ = lock.Release(context.Background()) }()

	e, err := en.Get(ctx, userID, enrollmentID)
	if err != nil {
		return nil, err
	}
	if e.Status.IsTerminal() {
		return nil, ErrAlreadyTerminal
	}
	if reason == "" {
		reason = "cancelled by user"
	}
	e.Status = domain.EnrollmentCancelled
	e.TerminalReason = reason
	e.WaitingForNextStep = false
	e.NextStepReadyAt = nil
	e.CompletedAt = &now
	e.UpdatedAt = now
	if err := en.repo.UpdateEnrollment(ctx, e); err != nil {
		return nil, fmt.Errorf("cancel enrollment: %w", err)
	}
	en.log.Info("enrollment cancelled", "enrollment_id", e.ID, "reason", reason)
	return e, nil
}
