package model

import "errors"

// Sentinel errors for data-quality checks on domain records.
var (
	ErrMilestoneOrder = errors.New("milestones out of order")
)
