package features

import "errors"

// Sentinel errors for feature vectors and encoders.
var (
	ErrUnknownKind    = errors.New("unknown feature kind")
	ErrInvalidValue   = errors.New("invalid feature value")
	ErrUnknownFeature = errors.New("feature not declared by schema")
	ErrKindMismatch   = errors.New("feature kind mismatch")
)
