package service

import "errors"

// Sentinel errors surfaced to the API layer.
var (
	ErrNotStarted        = errors.New("service not started")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrDuplicateEvent    = errors.New("duplicate event")
	ErrBackpressure      = errors.New("event queue full")
	ErrModelUnavailable  = errors.New("no model loaded")
	ErrNoValidation      = errors.New("no validation predictions loaded")
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidSimulation = errors.New("invalid simulation request")
)
