package enrollment

import "errors"

var (
	// ErrInvalidRequest is returned for a malformed enroll request.
	ErrInvalidRequest = errors.New("invalid enrollment request")

	// ErrCampaignInactive is returned when enrolling into a campaign that is not active.
	ErrCampaignInactive = errors.New("campaign is not active")

	// ErrContactUnsubscribed is returned when enrolling a contact that opted out.
	ErrContactUnsubscribed = errors.New("contact is unsubscribed")

	// ErrAlreadyEnrolled is returned when a concurrent request created the
	// same open enrollment first.
	ErrAlreadyEnrolled = errors.New("contact already enrolled in campaign")

	// ErrLockBusy is returned when another worker holds the lock. Retry later.
	ErrLockBusy = errors.New("resource locked by another worker")

	// ErrAlreadyTerminal is returned when cancelling a finished enrollment.
	ErrAlreadyTerminal = errors.New("enrollment already finished")
)
