package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/slarisk/internal/adapters/artifact"
	"github.com/okian/slarisk/internal/adapters/dataset"
	"github.com/okian/slarisk/internal/config"
	"github.com/okian/slarisk/internal/domain/aggregate"
	"github.com/okian/slarisk/internal/domain/classifier"
	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/internal/domain/labels"
	"github.com/okian/slarisk/internal/domain/model"
	"github.com/okian/slarisk/internal/domain/training"
	"github.com/okian/slarisk/pkg/logger"
	"github.com/okian/slarisk/pkg/metrics"
)

// TrainReport summarises an offline training run. AUC is nil when the
// validation partition held a single class.
type TrainReport struct {
	ModelID        string                     `json:"model_id"`
	Dataset        dataset.Report             `json:"dataset"`
	Events         aggregate.Report           `json:"events"`
	Trajectories   aggregate.TrajectoryReport `json:"trajectories"`
	InvalidTasks   int                        `json:"invalid_tasks"`
	Rows           training.RowReport         `json:"rows"`
	TrainRows      int                        `json:"train_rows"`
	ValidationRows int                        `json:"validation_rows"`
	PositiveWeight float64                    `json:"positive_weight"`
	AUC            *float64                   `json:"validation_auc,omitempty"`
	Epochs         int                        `json:"epochs"`
	Converged      bool                       `json:"converged"`
	TrainEnd       time.Time                  `json:"train_end"`
	ValidationFrom time.Time                  `json:"validation_start"`
	// FeatureImportance ranks the delay drivers, strongest first.
	FeatureImportance []classifier.Importance `json:"feature_importance"`
	Took              string                  `json:"took"`
}

// Pipeline runs offline training: load, aggregate, label, fit and publish.
type Pipeline struct {
	cfg    *config.Config
	reader *dataset.Reader
	log    logger.Logger
	tier   string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithTier labels tasks without a promise time against tier instead of the default.
func WithTier(tier string) PipelineOption {
	return func(p *Pipeline) {
		p.tier = tier
	}
}

// WithReader replaces the dataset reader, e.g. to set the source time zone.
func WithReader(r *dataset.Reader) PipelineOption {
	return func(p *Pipeline) {
		if r != nil {
			p.reader = r
		}
	}
}

// NewPipeline validates cfg and returns a Pipeline.
func NewPipeline(cfg *config.Config, opts ...PipelineOption) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, reader: dataset.NewReader(), log: logger.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run trains on src and publishes the model, manifest and validation predictions
// to the configured paths. Nothing is published when any step fails.
func (p *Pipeline) Run(ctx context.Context, src dataset.Sources) (*TrainReport, error) {
	start := time.Now()
	rep, err := p.run(ctx, src)
	if err != nil {
		metrics.RecordTrainingRun("failure")
		p.log.Error(ctx, "training failed", logger.Error(err))
		return nil, err
	}
	metrics.RecordTrainingRun("success")
	rep.Took = time.Since(start).Round(time.Millisecond).String()
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, src dataset.Sources) (*TrainReport, error) {
	if src.Empty() {
		return nil, fmt.Errorf("%w: no dataset files given", training.ErrInsufficientData)
	}
	gen, err := labels.NewGenerator(p.cfg.SLATiers, p.cfg.DefaultTier)
	if err != nil {
		return nil, err
	}
	store, err := artifact.NewStore(p.cfg.ModelPath, p.cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	bundle, err := p.reader.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	rep := &TrainReport{Dataset: bundle.Report}
	p.log.Info(ctx, "dataset loaded",
		logger.Int("tasks", len(bundle.Tasks)),
		logger.Int("events", len(bundle.Events)),
		logger.Int("trajectory_points", len(bundle.Trajectories)),
		logger.Int("malformed", bundle.Report.Malformed),
	)

	records := make([]model.TaskRecord, 0, len(bundle.Tasks))
	for _, r := range bundle.Tasks {
		if r.Validate() != nil {
			rep.InvalidTasks++
			continue
		}
		records = append(records, r)
	}
	aggregated, evRep := aggregate.Aggregate(bundle.Events)
	rep.Events = evRep
	records = append(records, aggregated...)
	metrics.RecordEventsDropped("missing_task_id", evRep.Dropped)
	metrics.RecordEventsDropped("unknown_type", evRep.UnknownTypes)
	metrics.RecordEventsDropped("milestone_order", evRep.Invalid)

	synthetic, trRep := aggregate.FromTrajectories(bundle.Trajectories, aggregate.TrajectoryConfig{
		BaseMinutes:      p.cfg.TrajectoryBaseMinutes,
		PaceMinutesPerKM: p.cfg.TrajectoryPaceMinutesPerKM,
	})
	rep.Trajectories = trRep
	records = append(records, synthetic...)

	rows, rowRep, err := training.BuildRows(records, features.NewExtractor(), gen, p.tier)
	rep.Rows = rowRep
	if err != nil {
		return nil, fmt.Errorf("build rows: %w", err)
	}
	p.log.Info(ctx, "training rows built",
		logger.Int("records", rowRep.Records),
		logger.Int("rows", rowRep.Rows),
		logger.Int("positives", rowRep.Positives),
		logger.Int("incomplete", rowRep.Incomplete),
		logger.Int("synthetic", rowRep.Synthetic),
	)

	trainer := training.NewTrainer(
		training.WithTrainFraction(p.cfg.TrainFraction),
		training.WithLogger(p.log.Named("trainer")),
	)
	res, err := trainer.Train(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	if err := store.Save(ctx, res.Artifact, res.Manifest); err != nil {
		return nil, fmt.Errorf("publish model: %w", err)
	}
	if err := artifact.WriteValidation(p.cfg.ValidationPath, res.Validation); err != nil {
		return nil, fmt.Errorf("publish validation predictions: %w", err)
	}

	rep.ModelID = res.Artifact.ModelID
	rep.TrainRows = res.TrainRows
	rep.ValidationRows = res.ValidationRows
	rep.PositiveWeight = res.PositiveWeight
	rep.Epochs = res.Fit.Epochs
	rep.Converged = res.Fit.Converged
	rep.TrainEnd = res.TrainEnd
	rep.ValidationFrom = res.ValidationStart
	rep.FeatureImportance = res.Importance
	if !math.IsNaN(res.AUC) {
		auc := res.AUC
		rep.AUC = &auc
	}
	metrics.UpdateTrainingResult(res.AUC, res.TrainRows, res.ValidationRows, res.PositiveWeight)

	p.log.Info(ctx, "model published",
		logger.String("model_id", rep.ModelID),
		logger.Float64("validation_auc", res.AUC),
		logger.Float64("positive_weight", res.PositiveWeight),
		logger.String("model_path", p.cfg.ModelPath),
	)
	return rep, nil
}
