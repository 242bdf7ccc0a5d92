// Package inference scores feature vectors with a loaded model and manifest pair.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/slarisk/internal/domain/classifier"
	"github.com/okian/slarisk/internal/domain/features"
)

var tracer = otel.Tracer("github.com/okian/slarisk/internal/domain/inference") //nolint:gochecknoglobals // otel tracer

// Engine scores vectors against an immutable model. All methods are safe for concurrent use.
type Engine struct {
	manifest Manifest
	model    classifier.Model
	encoder  *features.Encoder
}

// NewEngine pairs an artifact with its manifest. A foreign manifest, a feature count
// that disagrees with the model, or encoders for undeclared features are rejected.
func NewEngine(a Artifact, m Manifest) (*Engine, error) {
	if a.ModelID == "" || a.ModelID != m.ModelID {
		return nil, fmt.Errorf("%w: artifact %q manifest %q", ErrManifestMismatch, a.ModelID, m.ModelID)
	}
	n := len(m.Features)
	if n == 0 || a.FeatureCount != n || a.Classifier.Dim() != n {
		return nil, fmt.Errorf("%w: manifest has %d features, artifact declares %d, model has %d",
			ErrManifestMismatch, n, a.FeatureCount, a.Classifier.Dim())
	}
	seen := make(map[string]struct{}, n)
	for _, f := range m.Features {
		if _, dup := seen[f.Name]; dup || f.Name == "" {
			return nil, fmt.Errorf("%w: duplicate or empty feature %q", ErrManifestMismatch, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	for name := range a.Encoders {
		if f, ok := m.Features.Lookup(name); !ok || f.Kind != features.Categorical {
			return nil, fmt.Errorf("%w: encoder for %q has no categorical slot", ErrManifestMismatch, name)
		}
	}
	if err := a.Classifier.Check(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestMismatch, err)
	}

	model := classifier.Model{
		Weights: append([]float64(nil), a.Classifier.Weights...),
		Bias:    a.Classifier.Bias,
		Mean:    append([]float64(nil), a.Classifier.Mean...),
		Scale:   append([]float64(nil), a.Classifier.Scale...),
	}
	manifest := Manifest{
		ModelID:   m.ModelID,
		CreatedAt: m.CreatedAt,
		Features:  append(features.Schema(nil), m.Features...),
	}
	levels := make(map[string][]string, len(a.Encoders))
	for k, v := range a.Encoders {
		levels[k] = append([]string(nil), v...)
	}
	return &Engine{manifest: manifest, model: model, encoder: features.NewEncoder(levels)}, nil
}

// ModelID returns the id shared by the loaded artifact and manifest.
func (e *Engine) ModelID() string {
	return e.manifest.ModelID
}

// Features returns a copy of the manifest schema.
func (e *Engine) Features() features.Schema {
	return append(features.Schema(nil), e.manifest.Features...)
}

// Predict scores a loosely typed feature map. Keys outside the manifest are ignored,
// missing or null keys are zero-filled.
func (e *Engine) Predict(input map[string]any) (float64, error) {
	v := make(features.Vector, len(e.manifest.Features))
	for _, f := range e.manifest.Features {
		raw, ok := input[f.Name]
		if !ok || raw == nil {
			continue
		}
		val, err := features.FromAny(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrMalformedFeature, f.Name, err)
		}
		v[f.Name] = val
	}
	return e.PredictVector(v)
}

// PredictVector reindexes v into manifest order and returns the breach probability.
func (e *Engine) PredictVector(v features.Vector) (float64, error) {
	row, err := e.encoder.Encode(e.manifest.Features, v)
	if err != nil {
		if errors.Is(err, features.ErrKindMismatch) {
			return 0, fmt.Errorf("%w: %w", ErrMalformedFeature, err)
		}
		return 0, err
	}
	p, err := e.model.Predict(row)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p) {
		return 0, ErrPrediction
	}
	return p, nil
}

// BatchResult is the outcome of scoring one item of a batch.
type BatchResult struct {
	Probability float64
	Err         error
}

// PredictBatch scores items in order. A failing item yields an error result and
// does not affect the others.
func (e *Engine) PredictBatch(ctx context.Context, items []map[string]any) []BatchResult {
	_, span := tracer.Start(ctx, "inference.PredictBatch")
	defer span.End()

	out := make([]BatchResult, len(items))
	failed := 0
	for i, item := range items {
		p, err := e.Predict(item)
		out[i] = BatchResult{Probability: p, Err: err}
		if err != nil {
			failed++
		}
	}
	span.SetAttributes(
		attribute.String("model_id", e.manifest.ModelID),
		attribute.Int("items", len(items)),
		attribute.Int("failed", failed),
	)
	return out
}
