// Package training fits the breach classifier on a time-ordered split and
// produces the artifact, manifest and validation predictions of a run.
package training

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/okian/slarisk/internal/domain/classifier"
	"github.com/okian/slarisk/internal/domain/costsim"
	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/internal/domain/inference"
	"github.com/okian/slarisk/pkg/logger"
)

var tracer = otel.Tracer("github.com/okian/slarisk/internal/domain/training") //nolint:gochecknoglobals // otel tracer

const defaultTrainFraction = 0.8

// Result is everything a training run produces.
type Result struct {
	Artifact        inference.Artifact
	Manifest        inference.Manifest
	Validation      []costsim.Pair
	AUC             float64 // NaN when the validation partition has a single class
	Importance      []classifier.Importance
	PositiveWeight  float64
	TrainRows       int
	ValidationRows  int
	TrainEnd        time.Time
	ValidationStart time.Time
	Fit             classifier.FitReport
}

// Trainer fits models. A Trainer holds no run state and may be reused.
type Trainer struct {
	fraction float64
	hp       classifier.Hyperparams
	schema   features.Schema
	log      logger.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithTrainFraction sets the share of the earliest rows used for training.
func WithTrainFraction(f float64) Option {
	return func(t *Trainer) {
		t.fraction = f
	}
}

// WithHyperparams sets classifier hyperparameters.
func WithHyperparams(hp classifier.Hyperparams) Option {
	return func(t *Trainer) {
		t.hp = hp
	}
}

// WithSchema replaces the canonical task schema.
func WithSchema(s features.Schema) Option {
	return func(t *Trainer) {
		if len(s) > 0 {
			t.schema = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Trainer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTrainer creates a Trainer.
func NewTrainer(opts ...Option) *Trainer {
	t := &Trainer{
		fraction: defaultTrainFraction,
		hp:       classifier.DefaultHyperparams(),
		schema:   features.TaskSchema,
		log:      logger.NewNop(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train splits rows in time, fits encoders and the classifier on the training
// partition only, and scores the validation partition.
func (t *Trainer) Train(ctx context.Context, rows []Row) (*Result, error) {
	ctx, span := tracer.Start(ctx, "training.Train")
	defer span.End()

	res, err := t.train(ctx, rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("model_id", res.Artifact.ModelID),
		attribute.Int("train_rows", res.TrainRows),
		attribute.Int("validation_rows", res.ValidationRows),
		attribute.Float64("positive_weight", res.PositiveWeight),
	)
	return res, nil
}

func (t *Trainer) train(ctx context.Context, rows []Row) (*Result, error) {
	train, valid, err := Split(rows, t.fraction)
	if err != nil {
		return nil, err
	}
	posWeight, err := PositiveWeight(train)
	if err != nil {
		return nil, err
	}

	trainVecs := make([]features.Vector, len(train))
	for i, r := range train {
		trainVecs[i] = t.schemaOnly(r.Vector)
	}
	enc := features.FitEncoder(t.schema, trainVecs)

	x := make([][]float64, len(train))
	y := make([]int, len(train))
	for i, r := range train {
		if x[i], err = enc.Encode(t.schema, trainVecs[i]); err != nil {
			return nil, err
		}
		y[i] = r.Label
	}
	clf, fit, err := classifier.Fit(ctx, x, y, posWeight, t.hp)
	if err != nil {
		return nil, err
	}

	now := t.now().UTC()
	id := t.newID()
	res := &Result{
		Manifest: inference.Manifest{ModelID: id, CreatedAt: now, Features: append(features.Schema(nil), t.schema...)},
		Artifact: inference.Artifact{
			ModelID:        id,
			CreatedAt:      now,
			FeatureCount:   len(t.schema),
			Classifier:     *clf,
			Encoders:       enc.Levels,
			Hyperparams:    t.hp,
			PositiveWeight: posWeight,
			TrainRows:      len(train),
			ValidationRows: len(valid),
		},
		PositiveWeight:  posWeight,
		TrainRows:       len(train),
		ValidationRows:  len(valid),
		TrainEnd:        train[len(train)-1].TS,
		ValidationStart: valid[0].TS,
		Fit:             fit,
	}
	if res.Importance, err = clf.Importance(t.schema.Names()); err != nil {
		return nil, err
	}

	engine, err := inference.NewEngine(res.Artifact, res.Manifest)
	if err != nil {
		return nil, err
	}
	res.Validation = make([]costsim.Pair, len(valid))
	vl := make([]int, len(valid))
	vp := make([]float64, len(valid))
	for i, r := range valid {
		p, err := engine.PredictVector(t.schemaOnly(r.Vector))
		if err != nil {
			return nil, err
		}
		res.Validation[i] = costsim.Pair{Label: r.Label, Prob: p}
		vl[i], vp[i] = r.Label, p
	}

	res.AUC = classifier.AUC(vl, vp)
	if math.IsNaN(res.AUC) {
		t.log.Warn(ctx, "validation AUC undefined: validation partition has a single class",
			logger.Int("validation_rows", len(valid)))
	} else {
		auc := res.AUC
		res.Artifact.ValidationAUC = &auc
	}
	t.log.Info(ctx, "training finished",
		logger.String("model_id", id),
		logger.Int("train_rows", len(train)),
		logger.Int("validation_rows", len(valid)),
		logger.Float64("positive_weight", posWeight),
		logger.Float64("auc", res.AUC),
		logger.Int("epochs", fit.Epochs),
		logger.Bool("converged", fit.Converged),
		logger.String("top_feature", res.Importance[0].Feature),
	)
	return res, nil
}

// schemaOnly drops keys the schema does not declare with a matching kind.
func (t *Trainer) schemaOnly(v features.Vector) features.Vector {
	out, _ := t.schema.Project(v)
	return out
}
