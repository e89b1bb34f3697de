package dynamo

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// timeKey sorts lexically in time order for UTC values.
const timeKey = "2006-01-02T15:04:05.000000000Z"

// Keys are the table and index keys every item carries.
type Keys struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	GSI1PK string `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK string `dynamodbav:"GSI1SK,omitempty"`
	GSI2PK string `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK string `dynamodbav:"GSI2SK,omitempty"`
}

// contactItem carries Rev, a token replaced on every write, so engagement
// updates can detect a concurrent writer.
type contactItem struct {
	Keys
	domain.Contact
	Rev string `dynamodbav:"Rev"`
}

func newContactItem(c *domain.Contact) contactItem {
	return contactItem{
		Keys:    Keys{PK: "CONTACT#" + c.ID, SK: meta, GSI1PK: "USER#" + c.UserID + "#CONTACT", GSI1SK: c.ID},
		Contact: *c,
		Rev:     uuid.NewString(),
	}
}

type campaignItem struct {
	Keys
	domain.Campaign
}

func newCampaignItem(c *domain.Campaign) campaignItem {
	return campaignItem{
		Keys:     Keys{PK: "CAMPAIGN#" + c.ID, SK: meta, GSI1PK: "USER#" + c.UserID + "#CAMPAIGN", GSI1SK: c.ID},
		Campaign: *c,
	}
}

type templateItem struct {
	Keys
	domain.EmailTemplate
}

type settingsItem struct {
	Keys
	domain.UserSettings
}

// userItem lists a user in the GSI2 directory partition.
type userItem struct {
	Keys
	UserID string `dynamodbav:"UserID"`
}

func newUserItem(userID string) userItem {
	return userItem{
		Keys:   Keys{PK: "USER#" + userID, SK: "DIRECTORY", GSI2PK: "USERS", GSI2SK: userID},
		UserID: userID,
	}
}

type enrollmentItem struct {
	Keys
	domain.Enrollment
}

func newEnrollmentItem(e *domain.Enrollment) enrollmentItem {
	k := Keys{PK: "ENROLLMENT#" + e.ID, SK: meta, GSI1PK: "USER#" + e.UserID + "#ENROLLMENT", GSI1SK: e.ID}
	if e.Status.IsOpen() {
		k.GSI2PK = "OPEN#ENROLLMENT"
		k.GSI2SK = e.ID
	}
	return enrollmentItem{Keys: k, Enrollment: *e}
}

// pairItem reserves a contact/campaign slot for one open enrollment.
type pairItem struct {
	Keys
	EnrollmentID string `dynamodbav:"EnrollmentID"`
}

func pairPK(contactID, campaignID string) string {
	return "PAIR#" + domain.PairKey(contactID, campaignID)
}

type emailLogItem struct {
	Keys
	domain.EmailLog
}

func emailLogPrefix(step int) string {
	return "EMAIL#" + padStep(step) + "#"
}

func newEmailLogItem(l *domain.EmailLog) emailLogItem {
	return emailLogItem{
		Keys: Keys{
			PK: "ENROLLMENT#" + l.EnrollmentID, SK: emailLogPrefix(l.Step) + l.ID,
			GSI1PK: "USER#" + l.UserID + "#EMAIL#" + string(l.Status),
			GSI1SK: l.SentAt.UTC().Format(timeKey) + "#" + l.ID,
		},
		EmailLog: *l,
	}
}

type taskItem struct {
	Keys
	domain.AutomationTask
}

func newTaskItem(t *domain.AutomationTask) taskItem {
	return taskItem{
		Keys: Keys{
			PK: "TASK#" + t.ID, SK: meta,
			GSI1PK: "USER#" + t.UserID + "#TASK",
			GSI1SK: t.CreatedAt.UTC().Format(timeKey) + "#" + t.ID,
		},
		AutomationTask: *t,
	}
}

func padStep(step int) string { return fmt.Sprintf("%04d", step) }
