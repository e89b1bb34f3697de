package task

import "errors"

// ErrInvalidTransition is returned when a task is not in a state that
// allows the requested action.
var ErrInvalidTransition = errors.New("invalid task status transition")
