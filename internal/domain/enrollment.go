package domain

import "time"

// EnrollmentStatus enumerates the lifecycle of a campaign enrollment.
type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
	EnrollmentFailed    EnrollmentStatus = "failed"
)

// IsTerminal returns true if the status is final.
func (s EnrollmentStatus) IsTerminal() bool {
	return s == EnrollmentCompleted || s == EnrollmentCancelled || s == EnrollmentFailed
}

// IsOpen returns true while the enrollment still occupies its contact/campaign slot.
func (s EnrollmentStatus) IsOpen() bool {
	return s == EnrollmentPending || s == EnrollmentActive
}

// QueuedCampaign is a campaign deferred because the contact was already
// mid-sequence in a campaign of the same purpose.
type QueuedCampaign struct {
	CampaignID string    `json:"campaign_id" dynamodbav:"CampaignID"`
	DelayDays  int       `json:"delay_days" dynamodbav:"DelayDays"`
	QueuedAt   time.Time `json:"queued_at" dynamodbav:"QueuedAt"`
	Reason     string    `json:"reason" dynamodbav:"Reason"`
}

// Enrollment tracks one contact's progress through one campaign.
//
// Version is the optimistic-concurrency token: repositories only accept an
// update whose Version matches the stored one, and bump it on success.
type Enrollment struct {
	ID                 string           `json:"id" db:"id" dynamodbav:"ID"`
	UserID             string           `json:"user_id" db:"user_id" dynamodbav:"UserID"`
	ContactID          string           `json:"contact_id" db:"contact_id" dynamodbav:"ContactID"`
	CampaignID         string           `json:"campaign_id" db:"campaign_id" dynamodbav:"CampaignID"`
	Status             EnrollmentStatus `json:"status" db:"status" dynamodbav:"Status"`
	CurrentStep        int              `json:"current_step" db:"current_step" dynamodbav:"CurrentStep"`
	LastStepSent       *int             `json:"last_step_sent" db:"last_step_sent" dynamodbav:"LastStepSent,omitempty"`
	WaitingForNextStep bool             `json:"waiting_for_next_step" db:"waiting_for_next_step" dynamodbav:"WaitingForNextStep"`
	NextStepReadyAt    *time.Time       `json:"next_step_ready_at" db:"next_step_ready_at" dynamodbav:"NextStepReadyAt,omitempty"`
	StartAt            *time.Time       `json:"start_at,omitempty" db:"start_at" dynamodbav:"StartAt,omitempty"`
	QueuedCampaigns    []QueuedCampaign `json:"queued_campaigns,omitempty" db:"queued_campaigns" dynamodbav:"QueuedCampaigns,omitempty"`
	NeedsRepair        bool             `json:"needs_repair" db:"needs_repair" dynamodbav:"NeedsRepair"`
	LastError          string           `json:"last_error,omitempty" db:"last_error" dynamodbav:"LastError,omitempty"`
	TerminalReason     string           `json:"terminal_reason,omitempty" db:"terminal_reason" dynamodbav:"TerminalReason,omitempty"`
	Version            int64            `json:"version" db:"version" dynamodbav:"Version"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at" dynamodbav:"UpdatedAt"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty" db:"completed_at" dynamodbav:"CompletedAt,omitempty"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (e *Enrollment) Clone() *Enrollment {
	cp := *e
	if e.LastStepSent != nil {
		v := *e.LastStepSent
		cp.LastStepSent = &v
	}
	if e.NextStepReadyAt != nil {
		t := *e.NextStepReadyAt
		cp.NextStepReadyAt = &t
	}
	if e.StartAt != nil {
		t := *e.StartAt
		cp.StartAt = &t
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		cp.CompletedAt = &t
	}
	if e.QueuedCampaigns != nil {
		cp.QueuedCampaigns = append([]QueuedCampaign(nil), e.QueuedCampaigns...)
	}
	return &cp
}

// PairKey identifies the contact/campaign slot an enrollment occupies.
func PairKey(contactID, campaignID string) string {
	return contactID + "|" + campaignID
}
