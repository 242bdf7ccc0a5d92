package artifact

import "errors"

// Sentinel errors for artifact persistence.
var (
	ErrInvalidPath       = errors.New("invalid artifact path")
	ErrInvalidDocument   = errors.New("invalid artifact document")
	ErrValidationMissing = errors.New("validation predictions missing")
)
