package decision

import "errors"

// Sentinel errors for decision policy.
var (
	ErrThresholdOrder     = errors.New("thresholds must satisfy 0 <= medium <= high <= 1")
	ErrInvalidProbability = errors.New("probability outside [0,1]")
)
