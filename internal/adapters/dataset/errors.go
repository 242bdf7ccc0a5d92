package dataset

import "errors"

// Sentinel errors for dataset decoding.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrUnknownFormat = errors.New("unknown dataset format")
)
