package classifier

import (
	"fmt"
	"math"
	"sort"
)

// Importance is one feature's contribution to the model. Weight is the
// coefficient on the standardised feature, so magnitudes compare across
// features; its sign tells whether the feature raises or lowers risk.
type Importance struct {
	Feature    string  `json:"feature"`
	Weight     float64 `json:"weight"`
	Importance float64 `json:"importance"`
}

// Importance ranks names, which must follow the model's column order, by the
// absolute standardised weight, largest first. Ties keep column order.
func (m *Model) Importance(names []string) ([]Importance, error) {
	if len(names) != len(m.Weights) {
		return nil, fmt.Errorf("%w: %d names for %d weights", ErrShapeMismatch, len(names), len(m.Weights))
	}
	out := make([]Importance, len(names))
	for i, n := range names {
		out[i] = Importance{Feature: n, Weight: m.Weights[i], Importance: math.Abs(m.Weights[i])}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}
