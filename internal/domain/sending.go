package domain

import "time"

// EmailLogStatus records the outcome of a single dispatch attempt.
type EmailLogStatus string

const (
	EmailLogSent   EmailLogStatus = "sent"
	EmailLogFailed EmailLogStatus = "failed"
)

// EmailLog is an append-only record of a campaign step dispatch. Sent
// entries count towards the user's daily email quota.
type EmailLog struct {
	ID           string         `json:"id" db:"id" dynamodbav:"ID"`
	UserID       string         `json:"user_id" db:"user_id" dynamodbav:"UserID"`
	EnrollmentID string         `json:"enrollment_id" db:"enrollment_id" dynamodbav:"EnrollmentID"`
	ContactID    string         `json:"contact_id" db:"contact_id" dynamodbav:"ContactID"`
	CampaignID   string         `json:"campaign_id" db:"campaign_id" dynamodbav:"CampaignID"`
	Step         int            `json:"step" db:"step" dynamodbav:"Step"`
	ToAddress    string         `json:"to_address" db:"to_address" dynamodbav:"ToAddress"`
	Subject      string         `json:"subject" db:"subject" dynamodbav:"Subject"`
	ProviderID   string         `json:"provider_id,omitempty" db:"provider_id" dynamodbav:"ProviderID,omitempty"`
	Status       EmailLogStatus `json:"status" db:"status" dynamodbav:"Status"`
	Error        string         `json:"error,omitempty" db:"error" dynamodbav:"Error,omitempty"`
	SentAt       time.Time      `json:"sent_at" db:"sent_at" dynamodbav:"SentAt"`
}
