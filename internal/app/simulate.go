package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/okian/slarisk/internal/domain/costsim"
)

var validate = validator.New() //nolint:gochecknoglobals // validators are safe for concurrent use and cache struct metadata

// SimulationRequest asks for the cost impact of a threshold. Unit costs and
// curve resolution default to configuration; Pairs replaces the loaded
// validation predictions when present.
type SimulationRequest struct {
	Threshold float64        `json:"threshold" validate:"gte=0,lte=1"`
	CostFN    *float64       `json:"cost_fn,omitempty" validate:"omitempty,gte=0"`
	CostFP    *float64       `json:"cost_fp,omitempty" validate:"omitempty,gte=0"`
	Points    int            `json:"points,omitempty" validate:"gte=0,lte=1000"`
	Pairs     []costsim.Pair `json:"pairs,omitempty" validate:"omitempty,dive"`
}

// SimulationReport is the answer to a SimulationRequest.
type SimulationReport struct {
	Examples     int                  `json:"examples"`
	Costs        costsim.Costs        `json:"costs"`
	Simulation   costsim.Simulation   `json:"simulation"`
	Curve        []costsim.CurvePoint `json:"curve"`
	Recommended  costsim.CurvePoint   `json:"recommended"`
	RiskExposure float64              `json:"risk_exposure"`
}

func (s *Service) simulator(pairs []costsim.Pair, costs costsim.Costs) (*costsim.Simulator, error) {
	if len(pairs) == 0 {
		loaded := s.validation.Load()
		if loaded == nil || len(*loaded) == 0 {
			return nil, ErrNoValidation
		}
		pairs = *loaded
	}
	return costsim.NewSimulator(pairs, costs, costsim.WithBaseline(s.cfg.BaselineThreshold))
}

// Simulate prices req.Threshold against the baseline and sweeps the cost curve.
func (s *Service) Simulate(ctx context.Context, req SimulationRequest) (*SimulationReport, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSimulation, err)
	}
	costs := costsim.Costs{FN: s.cfg.CostFN, FP: s.cfg.CostFP}
	if req.CostFN != nil {
		costs.FN = *req.CostFN
	}
	if req.CostFP != nil {
		costs.FP = *req.CostFP
	}
	points := req.Points
	if points == 0 {
		points = s.cfg.CurvePoints
	}

	sim, err := s.simulator(req.Pairs, costs)
	if err != nil {
		return nil, err
	}
	out := &SimulationReport{Examples: sim.Len(), Costs: sim.Costs(), RiskExposure: sim.RiskExposure()}
	if out.Simulation, err = sim.Simulate(req.Threshold); err != nil {
		return nil, err
	}
	if out.Curve, err = sim.Curve(ctx, points); err != nil {
		return nil, err
	}
	out.Recommended = costsim.Cheapest(out.Curve)
	return out, nil
}

// RiskSummary summarises the loaded validation predictions per risk band.
func (s *Service) RiskSummary(_ context.Context) (costsim.Summary, error) {
	sim, err := s.simulator(nil, costsim.Costs{FN: s.cfg.CostFN, FP: s.cfg.CostFP})
	if err != nil {
		return costsim.Summary{}, err
	}
	th := s.decider.Thresholds()
	return sim.Summary(th.Medium, th.High), nil
}
