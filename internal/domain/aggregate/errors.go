package aggregate

import "errors"

// Sentinel errors for online aggregation.
var (
	ErrMissingTaskID    = errors.New("event has no task id")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrTaskFinalized    = errors.New("task already delivered")
)
