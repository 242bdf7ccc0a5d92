// Package classifier implements the binary probability model behind the
// prediction contract: an L2-regularised, class-weighted logistic regression
// over standardised features, fit by full-batch gradient descent.
package classifier

import (
	"context"
	"fmt"
	"math"
)

// Hyperparams control fitting.
type Hyperparams struct {
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
	L2           float64 `json:"l2"`
	// Tolerance stops fitting once the loss improves by less than this amount.
	Tolerance float64 `json:"tolerance"`
}

// DefaultHyperparams returns settings that converge on standardised inputs.
func DefaultHyperparams() Hyperparams {
	return Hyperparams{LearningRate: 0.5, Epochs: 1000, L2: 1e-4, Tolerance: 1e-9}
}

// Model is a fitted logistic regression. It is read-only after Fit.
type Model struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// FitReport describes a finished fit.
type FitReport struct {
	Epochs    int     `json:"epochs"`
	Loss      float64 `json:"loss"`
	Converged bool    `json:"converged"`
}

// Fit trains a model on rows x with labels y (0 or 1). Positive rows weigh posWeight,
// negative rows weigh 1. ctx is checked between epochs.
func Fit(ctx context.Context, x [][]float64, y []int, posWeight float64, hp Hyperparams) (*Model, FitReport, error) {
	if len(x) == 0 {
		return nil, FitReport{}, ErrEmptyInput
	}
	if len(x) != len(y) {
		return nil, FitReport{}, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(x), len(y))
	}
	if posWeight <= 0 || math.IsNaN(posWeight) || math.IsInf(posWeight, 0) {
		return nil, FitReport{}, fmt.Errorf("%w: positive weight %v", ErrInvalidParam, posWeight)
	}
	if hp.LearningRate <= 0 || hp.Epochs <= 0 || hp.L2 < 0 {
		return nil, FitReport{}, fmt.Errorf("%w: %+v", ErrInvalidParam, hp)
	}
	dim := len(x[0])
	for i, row := range x {
		if len(row) != dim {
			return nil, FitReport{}, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), dim)
		}
		if y[i] != 0 && y[i] != 1 {
			return nil, FitReport{}, fmt.Errorf("%w: label %d at row %d", ErrInvalidParam, y[i], i)
		}
	}

	m := &Model{Weights: make([]float64, dim)}
	m.Mean, m.Scale = standardisation(x, dim)
	z := make([][]float64, len(x))
	for i, row := range x {
		z[i] = m.standardise(row)
	}

	sw := make([]float64, len(y))
	var total float64
	for i, label := range y {
		sw[i] = 1
		if label == 1 {
			sw[i] = posWeight
		}
		total += sw[i]
	}

	grad := make([]float64, dim)
	prev := math.Inf(1)
	rep := FitReport{}
	for epoch := 1; epoch <= hp.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		for j := range grad {
			grad[j] = 0
		}
		var gradB, loss float64
		for i, row := range z {
			p := sigmoid(dot(m.Weights, row) + m.Bias)
			diff := sw[i] * (p - float64(y[i]))
			for j, v := range row {
				grad[j] += diff * v
			}
			gradB += diff
			loss += sw[i] * logLoss(p, y[i])
		}
		loss /= total
		for j, w := range m.Weights {
			loss += 0.5 * hp.L2 * w * w
			grad[j] = grad[j]/total + hp.L2*w
		}
		gradB /= total

		for j := range m.Weights {
			m.Weights[j] -= hp.LearningRate * grad[j]
		}
		m.Bias -= hp.LearningRate * gradB

		rep.Epochs, rep.Loss = epoch, loss
		if prev-loss >= 0 && prev-loss < hp.Tolerance {
			rep.Converged = true
			break
		}
		prev = loss
	}
	return m, rep, nil
}

// Predict returns the probability of the positive class for a raw row.
func (m *Model) Predict(row []float64) (float64, error) {
	if len(row) != len(m.Weights) {
		return 0, fmt.Errorf("%w: %d columns, model has %d", ErrShapeMismatch, len(row), len(m.Weights))
	}
	return sigmoid(dot(m.Weights, m.standardise(row)) + m.Bias), nil
}

// Dim returns the number of input columns.
func (m *Model) Dim() int {
	return len(m.Weights)
}

// Check verifies the internal consistency of a model loaded from storage.
func (m *Model) Check() error {
	n := len(m.Weights)
	if n == 0 || len(m.Mean) != n || len(m.Scale) != n {
		return fmt.Errorf("%w: weights %d mean %d scale %d", ErrShapeMismatch, n, len(m.Mean), len(m.Scale))
	}
	for i := 0; i < n; i++ {
		if m.Scale[i] <= 0 || !finite(m.Weights[i]) || !finite(m.Mean[i]) || !finite(m.Scale[i]) {
			return fmt.Errorf("%w: column %d", ErrInvalidParam, i)
		}
	}
	if !finite(m.Bias) {
		return fmt.Errorf("%w: bias", ErrInvalidParam)
	}
	return nil
}

func (m *Model) standardise(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - m.Mean[j]) / m.Scale[j]
	}
	return out
}

func standardisation(x [][]float64, dim int) (mean, scale []float64) {
	mean = make([]float64, dim)
	scale = make([]float64, dim)
	n := float64(len(x))
	for _, row := range x {
		for j, v := range row {
			mean[j] += v / n
		}
	}
	for _, row := range x {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d / n
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j])
		if scale[j] < 1e-12 {
			scale[j] = 1
		}
	}
	return mean, scale
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func logLoss(p float64, y int) float64 {
	const eps = 1e-15
	p = math.Min(math.Max(p, eps), 1-eps)
	if y == 1 {
		return -math.Log(p)
	}
	return -math.Log(1 - p)
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
