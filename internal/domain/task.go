package domain

import "time"

// TaskType identifies the action an automation task proposes.
type TaskType string

const (
	TaskCampaignEnrollment TaskType = "campaign_enrollment"
)

// TaskStatus enumerates the approval lifecycle of an automation task.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskApproved TaskStatus = "approved"
	TaskRejected TaskStatus = "rejected"
	TaskExecuted TaskStatus = "executed"
	TaskFailed   TaskStatus = "failed"
)

// TaskPayload describes the enrollments an approved task performs.
type TaskPayload struct {
	CampaignID string   `json:"campaign_id" dynamodbav:"CampaignID"`
	Purpose    string   `json:"purpose" dynamodbav:"Purpose"`
	ContactIDs []string `json:"contact_ids" dynamodbav:"ContactIDs"`
	DelayDays  int      `json:"delay_days" dynamodbav:"DelayDays"`
	Reason     string   `json:"reason" dynamodbav:"Reason"`
}

// TaskResult summarises what execution did.
type TaskResult struct {
	Enrolled int      `json:"enrolled" dynamodbav:"Enrolled"`
	Queued   int      `json:"queued" dynamodbav:"Queued"`
	Skipped  int      `json:"skipped" dynamodbav:"Skipped"`
	Errors   []string `json:"errors,omitempty" dynamodbav:"Errors,omitempty"`
}

// AutomationTask wraps a proposed action awaiting human review.
type AutomationTask struct {
	ID         string      `json:"id" db:"id" dynamodbav:"ID"`
	UserID     string      `json:"user_id" db:"user_id" dynamodbav:"UserID"`
	Type       TaskType    `json:"type" db:"type" dynamodbav:"Type"`
	Status     TaskStatus  `json:"status" db:"status" dynamodbav:"Status"`
	Title      string      `json:"title" db:"title" dynamodbav:"Title"`
	Payload    TaskPayload `json:"payload" db:"payload" dynamodbav:"Payload"`
	Result     *TaskResult `json:"result,omitempty" db:"result" dynamodbav:"Result,omitempty"`
	Version    int64       `json:"version" db:"version" dynamodbav:"Version"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at" dynamodbav:"CreatedAt"`
	ReviewedAt *time.Time  `json:"reviewed_at,omitempty" db:"reviewed_at" dynamodbav:"ReviewedAt,omitempty"`
	ReviewedBy string      `json:"reviewed_by,omitempty" db:"reviewed_by" dynamodbav:"ReviewedBy,omitempty"`
	ExecutedAt *time.Time  `json:"executed_at,omitempty" db:"executed_at" dynamodbav:"ExecutedAt,omitempty"`
}
