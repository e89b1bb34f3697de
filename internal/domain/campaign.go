package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft    CampaignStatus = "draft"
	CampaignActive   CampaignStatus = "active"
	CampaignPaused   CampaignStatus = "paused"
	CampaignArchived CampaignStatus = "archived"
)

// Campaign is an ordered sequence of emails sent to an enrolled contact.
type Campaign struct {
	ID          string            `json:"id" db:"id" dynamodbav:"ID"`
	UserID      string            `json:"user_id" db:"user_id" dynamodbav:"UserID"`
	Name        string            `json:"name" db:"name" dynamodbav:"Name"`
	Description string            `json:"description" db:"description" dynamodbav:"Description"`
	Purpose     string            `json:"purpose" db:"purpose" dynamodbav:"Purpose"`
	Steps       []Step            `json:"steps" db:"steps" dynamodbav:"Steps"`
	Status      CampaignStatus    `json:"status" db:"status" dynamodbav:"Status"`
	Fields      map[string]string `json:"fields,omitempty" db:"fields" dynamodbav:"Fields,omitempty"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at" dynamodbav:"UpdatedAt"`
}

// IsActive reports whether new enrollments may be created for the campaign.
func (c *Campaign) IsActive() bool {
	return c.Status == CampaignActive
}

// StepAt returns the step at index i, or false when i is out of range.
func (c *Campaign) StepAt(i int) (Step, bool) {
	if i < 0 || i >= len(c.Steps) {
		return Step{}, false
	}
	return c.Steps[i], true
}

// Step is one email of a campaign. The delay is the wait before this step
// is sent, measured from the moment the previous step was sent (or from
// activation for step 0).
type Step struct {
	TemplateID   string            `json:"template_id" dynamodbav:"TemplateID"`
	DelaySeconds int64             `json:"delay_seconds" dynamodbav:"DelaySeconds"`
	Subject      string            `json:"subject,omitempty" dynamodbav:"Subject,omitempty"`
	Fields       map[string]string `json:"fields,omitempty" dynamodbav:"Fields,omitempty"`
}

// Delay returns the configured wait before the step is sent.
func (s Step) Delay() time.Duration {
	if s.DelaySeconds <= 0 {
		return 0
	}
	return time.Duration(s.DelaySeconds) * time.Second
}

// EmailTemplate is the content sent for a campaign step.
type EmailTemplate struct {
	ID        string    `json:"id" db:"id" dynamodbav:"ID"`
	UserID    string    `json:"user_id" db:"user_id" dynamodbav:"UserID"`
	Name      string    `json:"name" db:"name" dynamodbav:"Name"`
	Subject   string    `json:"subject" db:"subject" dynamodbav:"Subject"`
	HTMLBody  string    `json:"html_body" db:"html_body" dynamodbav:"HTMLBody"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" dynamodbav:"UpdatedAt"`
}
