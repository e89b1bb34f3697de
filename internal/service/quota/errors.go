package quota

import "errors"

var (
	// ErrNearEmailLimit is returned when the user has used most of today's
	// email budget. Generation and dispatch fail closed.
	ErrNearEmailLimit = errors.New("daily email limit nearly reached")

	// ErrTaskLimitReached is returned when no automation suggestions remain today.
	ErrTaskLimitReached = errors.New("daily automation task limit reached")
)
