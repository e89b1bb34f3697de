package domain

import "time"

// ContactStatus enumerates the sales stages a contact can be in.
type ContactStatus string

const (
	ContactProspect   ContactStatus = "prospect"
	ContactLead       ContactStatus = "lead"
	ContactCustomer   ContactStatus = "customer"
	ContactClosedWon  ContactStatus = "closed-won"
	ContactClosedLost ContactStatus = "closed-lost"
)

// MinHeatScore is the floor below which a heat score never drops.
const MinHeatScore = 0

// Contact is a person owned by a user. Heat score and engagement timestamps
// are written by engagement handlers only.
type Contact struct {
	ID              string            `json:"id" db:"id" dynamodbav:"ID"`
	UserID          string            `json:"user_id" db:"user_id" dynamodbav:"UserID"`
	Email           string            `json:"email" db:"email" dynamodbav:"Email"`
	FirstName       string            `json:"first_name" db:"first_name" dynamodbav:"FirstName"`
	LastName        string            `json:"last_name" db:"last_name" dynamodbav:"LastName"`
	Company         string            `json:"company,omitempty" db:"company" dynamodbav:"Company,omitempty"`
	Phone           string            `json:"phone,omitempty" db:"phone" dynamodbav:"Phone,omitempty"`
	HeatScore       int               `json:"heat_score" db:"heat_score" dynamodbav:"HeatScore"`
	AppointmentDate *time.Time        `json:"appointment_date,omitempty" db:"appointment_date" dynamodbav:"AppointmentDate,omitempty"`
	LastContact     *time.Time        `json:"last_contact,omitempty" db:"last_contact" dynamodbav:"LastContact,omitempty"`
	LastEngagement  *time.Time        `json:"last_engagement,omitempty" db:"last_engagement" dynamodbav:"LastEngagement,omitempty"`
	Status          ContactStatus     `json:"status" db:"status" dynamodbav:"Status"`
	Unsubscribed    bool              `json:"unsubscribed" db:"unsubscribed" dynamodbav:"Unsubscribed"`
	CustomFields    map[string]string `json:"custom_fields,omitempty" db:"custom_fields" dynamodbav:"CustomFields,omitempty"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at" dynamodbav:"UpdatedAt"`
}

// IsCustomerLike is true for contacts that have already bought.
func (c *Contact) IsCustomerLike() bool {
	return c.Status == ContactCustomer || c.Status == ContactClosedWon
}

// FullName joins first and last name, skipping empty parts.
func (c *Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// EngagementUpdate is a field-level change to a contact's engagement state.
// Stores apply it atomically so concurrent events never undo each other:
// heat deltas add up, an unsubscribe is never cleared and LastEngagement
// only moves forward.
type EngagementUpdate struct {
	HeatDelta   int
	Unsubscribe bool
	EngagedAt   *time.Time
	At          time.Time
}

// Apply mutates c in place.
func (u EngagementUpdate) Apply(c *Contact) {
	c.HeatScore += u.HeatDelta
	if c.HeatScore < MinHeatScore {
		c.HeatScore = MinHeatScore
	}
	if u.Unsubscribe {
		c.Unsubscribed = true
	}
	if u.EngagedAt != nil && (c.LastEngagement == nil || u.EngagedAt.After(*c.LastEngagement)) {
		at := *u.EngagedAt
		c.LastEngagement = &at
	}
	if u.At.After(c.UpdatedAt) {
		c.UpdatedAt = u.At
	}
}

// UserSettings carries the per-user inputs the quota guard needs.
type UserSettings struct {
	UserID                string `json:"user_id" db:"user_id" dynamodbav:"UserID"`
	EmailProvider         string `json:"email_provider" db:"email_provider" dynamodbav:"EmailProvider"`
	CustomDailyEmailLimit int    `json:"custom_daily_email_limit" db:"custom_daily_email_limit" dynamodbav:"CustomDailyEmailLimit"`
	Timezone              string `json:"timezone" db:"timezone" dynamodbav:"Timezone"`
}
