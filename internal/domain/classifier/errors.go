package classifier

import "errors"

// Sentinel errors for fitting and prediction.
var (
	ErrEmptyInput    = errors.New("no training rows")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrInvalidParam  = errors.New("invalid parameter")
)
