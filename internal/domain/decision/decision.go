// Package decision maps breach probabilities to risk bands and dispatch actions.
package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/slarisk/internal/domain/model"
)

// Fallback cutoffs, used only when configuration supplies none.
const (
	DefaultMedium = 0.40
	DefaultHigh   = 0.70
)

// Action codes.
const (
	CodeNoAction = "ACT_000"
	CodeMonitor  = "ACT_002"
	CodeEscalate = "ACT_001"
)

// Thresholds are the inclusive lower bounds of the MEDIUM and HIGH bands.
type Thresholds struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// Validate requires 0 <= Medium <= High <= 1.
func (t Thresholds) Validate() error {
	if !(t.Medium >= 0 && t.Medium <= t.High && t.High <= 1) {
		return fmt.Errorf("%w: medium %v high %v", ErrThresholdOrder, t.Medium, t.High)
	}
	return nil
}

// Engine is a pure probability-to-action policy.
type Engine struct {
	th Thresholds
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds sets the band cutoffs.
func WithThresholds(th Thresholds) Option {
	return func(e *Engine) {
		e.th = th
	}
}

// NewEngine creates a decision engine. Cutoffs default to 0.40 and 0.70.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{th: Thresholds{Medium: DefaultMedium, High: DefaultHigh}}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.th.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Thresholds returns the cutoffs in use.
func (e *Engine) Thresholds() Thresholds {
	return e.th
}

// Band returns the band of p. A probability on a cutoff belongs to the higher band.
func (e *Engine) Band(p float64) (model.RiskBand, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return "", fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}
	switch {
	case p >= e.th.High:
		return model.BandHigh, nil
	case p >= e.th.Medium:
		return model.BandMedium, nil
	}
	return model.BandLow, nil
}

// Decide builds the decision record of a task scored at p, stamped with at.
func (e *Engine) Decide(taskID string, p float64, at time.Time) (model.DecisionRecord, error) {
	band, err := e.Band(p)
	if err != nil {
		return model.DecisionRecord{}, err
	}
	rec := model.DecisionRecord{
		TaskID:      taskID,
		Probability: p,
		RiskScore:   int(math.Round(p * 100)),
		Band:        band,
		DecidedAt:   at,
	}
	switch band {
	case model.BandHigh:
		rec.ActionCode = CodeEscalate
		rec.Action = "IMMEDIATE INTERVENTION"
		rec.Rationale = fmt.Sprintf("High risk of SLA breach (%.2f%%). Re-route or escalate.", p*100)
	case model.BandMedium:
		rec.ActionCode = CodeMonitor
		rec.Action = "MONITOR"
		rec.Rationale = "Potential delay. Add to dispatcher watchlist."
	default:
		rec.ActionCode = CodeNoAction
		rec.Action = "NO ACTION"
		rec.Rationale = "On track."
	}
	return rec, nil
}
