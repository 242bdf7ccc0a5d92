package repository

import "errors"

// Sentinel kinds for feature store errors.
var (
	ErrNotFound        = errors.New("task not found")
	ErrInvalidMutation = errors.New("invalid feature mutation")
	ErrUnknownBackend  = errors.New("unknown feature store backend")
	ErrClosed          = errors.New("feature store closed")
)
