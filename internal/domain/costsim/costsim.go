// Package costsim prices decision thresholds against held-out predictions.
package costsim

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBaseline is the threshold candidates are compared against.
	DefaultBaseline = 0.5

	curveMin = 0.01
	curveMax = 0.99
)

// Pair is one validation example: true label and predicted breach probability.
type Pair struct {
	Label int     `json:"y_true"`
	Prob  float64 `json:"y_prob"`
}

// Costs are the unit costs of a missed breach (FN) and of an unneeded intervention (FP).
type Costs struct {
	FN float64 `json:"cost_fn"`
	FP float64 `json:"cost_fp"`
}

// Impact is the confusion matrix and cost of one threshold.
type Impact struct {
	Threshold        float64 `json:"threshold"`
	TotalCost        float64 `json:"total_cost"`
	CostFNTotal      float64 `json:"cost_fn_total"`
	CostFPTotal      float64 `json:"cost_fp_total"`
	TP               int     `json:"tp_count"`
	FP               int     `json:"fp_count"`
	TN               int     `json:"tn_count"`
	FN               int     `json:"fn_count"`
	Interventions    int     `json:"intervention_count"`
	InterventionRate float64 `json:"intervention_rate"`
	Recall           float64 `json:"recall"`
	Precision        float64 `json:"precision"`
}

// Simulation compares a candidate threshold with the baseline.
// Savings is positive when the candidate is cheaper.
type Simulation struct {
	Candidate Impact  `json:"candidate"`
	Baseline  Impact  `json:"baseline"`
	Savings   float64 `json:"savings_vs_baseline"`
}

// CurvePoint is one step of the cost-versus-threshold sweep.
type CurvePoint struct {
	Threshold        float64 `json:"threshold"`
	TotalCost        float64 `json:"total_cost"`
	InterventionRate float64 `json:"intervention_rate"`
	FN               int     `json:"fn_count"`
	FP               int     `json:"fp_count"`
}

// Simulator evaluates thresholds over a fixed validation set.
type Simulator struct {
	pairs    []Pair
	costs    Costs
	baseline float64
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithBaseline replaces the 0.5 baseline threshold.
func WithBaseline(t float64) Option {
	return func(s *Simulator) {
		s.baseline = t
	}
}

// NewSimulator validates pairs and costs. Labels must be 0 or 1 and probabilities in [0,1].
func NewSimulator(pairs []Pair, costs Costs, opts ...Option) (*Simulator, error) {
	if !validCost(costs.FN) || !validCost(costs.FP) {
		return nil, fmt.Errorf("%w: fn %v fp %v", ErrInvalidCost, costs.FN, costs.FP)
	}
	for i, p := range pairs {
		if p.Label != 0 && p.Label != 1 {
			return nil, fmt.Errorf("%w: row %d label %d", ErrInvalidPair, i, p.Label)
		}
		if !(p.Prob >= 0 && p.Prob <= 1) {
			return nil, fmt.Errorf("%w: row %d probability %v", ErrInvalidPair, i, p.Prob)
		}
	}
	s := &Simulator{pairs: append([]Pair(nil), pairs...), costs: costs, baseline: DefaultBaseline}
	for _, opt := range opts {
		opt(s)
	}
	if !(s.baseline > 0 && s.baseline < 1) {
		return nil, fmt.Errorf("%w: baseline %v", ErrInvalidThreshold, s.baseline)
	}
	return s, nil
}

// Len returns the number of validation pairs.
func (s *Simulator) Len() int {
	return len(s.pairs)
}

// Costs returns the unit costs in use.
func (s *Simulator) Costs() Costs {
	return s.costs
}

// Evaluate prices threshold t; a probability at or above t predicts a breach.
func (s *Simulator) Evaluate(t float64) (Impact, error) {
	if !(t >= 0 && t <= 1) {
		return Impact{}, fmt.Errorf("%w: %v", ErrInvalidThreshold, t)
	}
	return evaluate(s.pairs, t, s.costs), nil
}

// Simulate evaluates t and the baseline and reports the savings.
func (s *Simulator) Simulate(t float64) (Simulation, error) {
	cand, err := s.Evaluate(t)
	if err != nil {
		return Simulation{}, err
	}
	base := evaluate(s.pairs, s.baseline, s.costs)
	return Simulation{Candidate: cand, Baseline: base, Savings: base.TotalCost - cand.TotalCost}, nil
}

// Thresholds returns points thresholds evenly spaced over [0.01, 0.99]; a single point is 0.5.
func Thresholds(points int) ([]float64, error) {
	if points <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPoints, points)
	}
	if points == 1 {
		return []float64{0.5}, nil
	}
	out := make([]float64, points)
	step := (curveMax - curveMin) / float64(points-1)
	for i := range out {
		out[i] = curveMin + float64(i)*step
	}
	out[points-1] = curveMax
	return out, nil
}

// Curve sweeps the thresholds in parallel and returns the points in threshold order.
func (s *Simulator) Curve(ctx context.Context, points int) ([]CurvePoint, error) {
	ts, err := Thresholds(points)
	if err != nil {
		return nil, err
	}
	out := make([]CurvePoint, len(ts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, t := range ts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			im := evaluate(s.pairs, t, s.costs)
			out[i] = CurvePoint{
				Threshold:        t,
				TotalCost:        im.TotalCost,
				InterventionRate: im.InterventionRate,
				FN:               im.FN,
				FP:               im.FP,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Recommend returns the cheapest curve point, preferring the lowest threshold on ties.
func (s *Simulator) Recommend(ctx context.Context, points int) (CurvePoint, error) {
	curve, err := s.Curve(ctx, points)
	if err != nil {
		return CurvePoint{}, err
	}
	return Cheapest(curve), nil
}

// Cheapest picks the lowest-cost point of a curve ordered by threshold. Ties go
// to the earlier point; an empty curve yields the zero point.
func Cheapest(curve []CurvePoint) CurvePoint {
	if len(curve) == 0 {
		return CurvePoint{}
	}
	best := curve[0]
	for _, p := range curve[1:] {
		if p.TotalCost < best.TotalCost {
			best = p
		}
	}
	return best
}

// RiskExposure is the expected breach cost when no action is taken: sum(p) * cost_fn.
func (s *Simulator) RiskExposure() float64 {
	var sum float64
	for _, p := range s.pairs {
		sum += p.Prob
	}
	return sum * s.costs.FN
}

func evaluate(pairs []Pair, t float64, c Costs) Impact {
	im := Impact{Threshold: t}
	for _, p := range pairs {
		predicted := p.Prob >= t
		switch {
		case predicted && p.Label == 1:
			im.TP++
		case predicted:
			im.FP++
		case p.Label == 1:
			im.FN++
		default:
			im.TN++
		}
	}
	im.CostFNTotal = float64(im.FN) * c.FN
	im.CostFPTotal = float64(im.FP) * c.FP
	im.TotalCost = im.CostFNTotal + im.CostFPTotal
	im.Interventions = im.TP + im.FP
	im.InterventionRate = ratio(im.Interventions, len(pairs))
	im.Recall = ratio(im.TP, im.TP+im.FN)
	im.Precision = ratio(im.TP, im.TP+im.FP)
	return im
}

// ratio returns 0 for an empty denominator.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func validCost(c float64) bool {
	return c >= 0 && !math.IsInf(c, 0)
}
