package costsim

import "github.com/okian/slarisk/internal/domain/model"

// Summary is the portfolio view of a validation set.
type Summary struct {
	TotalDeliveries   int                    `json:"total_deliveries"`
	PredictedBreaches int                    `json:"predicted_breaches"`
	BreachRate        float64                `json:"breach_rate"`
	TotalRiskExposure float64                `json:"total_risk_exposure"`
	Distribution      map[model.RiskBand]int `json:"risk_distribution"`
}

// Summary counts predictions per risk band using the medium and high cutoffs,
// and predicted breaches at the baseline threshold.
func (s *Simulator) Summary(medium, high float64) Summary {
	out := Summary{
		TotalDeliveries:   len(s.pairs),
		TotalRiskExposure: s.RiskExposure(),
		Distribution: map[model.RiskBand]int{
			model.BandLow:    0,
			model.BandMedium: 0,
			model.BandHigh:   0,
		},
	}
	for _, p := range s.pairs {
		if p.Prob >= s.baseline {
			out.PredictedBreaches++
		}
		switch {
		case p.Prob >= high:
			out.Distribution[model.BandHigh]++
		case p.Prob >= medium:
			out.Distribution[model.BandMedium]++
		default:
			out.Distribution[model.BandLow]++
		}
	}
	out.BreachRate = ratio(out.PredictedBreaches, out.TotalDeliveries)
	return out
}
