package recommendation

import "errors"

// ErrUnknownPolicy is returned for a selection policy name that is not recognised.
var ErrUnknownPolicy = errors.New("unknown selection policy")

// ErrHistoryUnavailable is returned by History when no archive is configured.
var ErrHistoryUnavailable = errors.New("recommendation history is not archived")
