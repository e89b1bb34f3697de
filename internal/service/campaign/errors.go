package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidCampaign   = errors.New("invalid campaign")
	ErrInvalidTemplate   = errors.New("invalid template")
	ErrInUse             = errors.New("campaign has open enrollments")
)
