package training

import "errors"

// Sentinel errors for training runs.
var (
	ErrInvalidConfig    = errors.New("invalid training config")
	ErrInsufficientData = errors.New("not enough rows for a train/validation split")
	ErrNoPositives      = errors.New("training partition has no positive labels")
)
