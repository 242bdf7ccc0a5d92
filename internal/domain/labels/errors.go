package labels

import "errors"

// Sentinel errors for label generation.
var (
	ErrEndBeforeStart   = errors.New("end before start")
	ErrInvalidThreshold = errors.New("invalid sla threshold")
	ErrUnknownTier      = errors.New("unknown sla tier")
	ErrIncomplete       = errors.New("task lacks start or delivered time")
)
