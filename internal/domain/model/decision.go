package model

import "time"

// RiskBand is an ordered probability tier.
type RiskBand string

// Risk bands, lowest first.
const (
	BandLow    RiskBand = "LOW"
	BandMedium RiskBand = "MEDIUM"
	BandHigh   RiskBand = "HIGH"
)

// DecisionRecord is the immutable outcome of scoring a task.
type DecisionRecord struct {
	TaskID      string    `json:"task_id"`
	Probability float64   `json:"probability"`
	RiskScore   int       `json:"risk_score"`
	Band        RiskBand  `json:"band"`
	ActionCode  string    `json:"action_code"`
	Action      string    `json:"action"`
	Rationale   string    `json:"rationale"`
	DecidedAt   time.Time `json:"decided_at"`
}
