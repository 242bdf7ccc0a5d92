package costsim

import "errors"

// Sentinel errors for cost simulation.
var (
	ErrInvalidCost      = errors.New("invalid unit cost")
	ErrInvalidPair      = errors.New("invalid validation pair")
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrInvalidPoints    = errors.New("invalid number of curve points")
)
