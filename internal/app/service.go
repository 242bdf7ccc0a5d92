// Package service wires the online scoring path (ingest, aggregate, store,
// score, decide) and the offline training pipeline behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/slarisk/internal/adapters/artifact"
	eventqueue "github.com/okian/slarisk/internal/adapters/mq/queue"
	workerpool "github.com/okian/slarisk/internal/adapters/mq/worker"
	"github.com/okian/slarisk/internal/adapters/repository"
	"github.com/okian/slarisk/internal/config"
	"github.com/okian/slarisk/internal/domain/aggregate"
	"github.com/okian/slarisk/internal/domain/costsim"
	"github.com/okian/slarisk/internal/domain/decision"
	"github.com/okian/slarisk/internal/domain/dedupe"
	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/internal/domain/inference"
	"github.com/okian/slarisk/internal/domain/model"
	"github.com/okian/slarisk/pkg/logger"
	"github.com/okian/slarisk/pkg/metrics"
)

const trackerSweepInterval = time.Minute

// Service implements the API dependencies of the risk scoring system.
type Service struct {
	mu sync.RWMutex

	cfg       *config.Config
	extractor *features.Extractor
	decider   *decision.Engine
	artifacts *artifact.Store
	recent    *decisionLog

	// Online components, built by Start.
	tracker   *aggregate.Tracker
	store     repository.FeatureStore
	ownsStore bool
	deduper   dedupe.Deduper
	queue     eventqueue.Queue
	pool      *workerpool.Pool

	engine     atomic.Pointer[inference.Engine]
	validation atomic.Pointer[[]costsim.Pair]

	started bool
	cancel  context.CancelFunc
	bg      sync.WaitGroup

	now    func() time.Time
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEngine installs a model instead of loading one from the artifact paths.
func WithEngine(e *inference.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine.Store(e)
		}
	}
}

// WithValidation installs validation predictions instead of reading the validation CSV.
func WithValidation(pairs []costsim.Pair) Option {
	return func(s *Service) {
		if pairs != nil {
			cp := append([]costsim.Pair(nil), pairs...)
			s.validation.Store(&cp)
		}
	}
}

// WithStore replaces the feature store built from configuration.
func WithStore(st repository.FeatureStore) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithClock replaces the wall clock used for decision stamps and TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New validates cfg and constructs a Service. Components that own goroutines are created by Start.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	decider, err := decision.NewEngine(decision.WithThresholds(decision.Thresholds{
		Medium: cfg.ThresholdMedium,
		High:   cfg.ThresholdHigh,
	}))
	if err != nil {
		return nil, err
	}
	store, err := artifact.NewStore(cfg.ModelPath, cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		extractor: features.NewExtractor(),
		decider:   decider,
		artifacts: store,
		recent:    newDecisionLog(cfg.RecentDecisions),
		now:       time.Now,
		logger:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start builds the online components, loads the model and validation set when
// available and starts the workers. A missing model is not fatal: ingestion
// still fills the feature store and scoring reports ErrModelUnavailable.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting risk service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if s.store == nil {
		st, err := repository.New(runCtx, s.cfg.StoreBackend,
			repository.WithOrdering(repository.Ordering(s.cfg.StoreOrdering)),
			repository.WithTTL(s.cfg.StoreTTL),
			repository.WithShards(s.cfg.StoreShards),
			repository.WithClock(s.now),
			repository.WithLogger(s.logger.Named("store")),
		)
		if err != nil {
			cancel()
			return fmt.Errorf("feature store: %w", err)
		}
		s.store = st
		s.ownsStore = true
	}

	s.tracker = aggregate.NewTracker(
		aggregate.WithTTL(s.cfg.StoreTTL),
		aggregate.WithMaxOpen(s.cfg.TrackerMaxOpen),
		aggregate.WithClock(s.now),
		aggregate.WithFinalizedMemory(s.cfg.DedupeSize),
		aggregate.WithEvictCallback(s.onTrackerEvict),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.EventQueueSize))
	s.pool = workerpool.NewPool(s.cfg.WorkerCount, s.queue, workerpool.HandlerFunc(s.Handle),
		workerpool.WithLogger(s.logger))

	if s.engine.Load() == nil {
		if err := s.loadModel(ctx); err != nil {
			if !errors.Is(err, inference.ErrArtifactMissing) {
				cancel()
				if s.ownsStore {
					_ = s.store.Close()
					s.store, s.ownsStore = nil, false
				}
				return fmt.Errorf("load model: %w", err)
			}
			s.logger.Warn(ctx, "scoring disabled until a model is trained", logger.Error(err))
		}
	}
	if s.validation.Load() == nil {
		if err := s.loadValidation(ctx); err != nil {
			s.logger.Warn(ctx, "cost simulation needs inline predictions", logger.Error(err))
		}
	}

	s.pool.Start(runCtx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.tracker.Run(runCtx, trackerSweepInterval)
	}()

	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "risk service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.cfg.EventQueueSize),
		logger.String("store_backend", s.cfg.StoreBackend),
		logger.String("store_ordering", s.cfg.StoreOrdering),
		logger.String("model_id", s.ModelID()),
	)
	return nil
}

// Stop drains queued events, stops background work and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping risk service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	s.bg.Wait()
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		s.store = nil
		s.ownsStore = false
	}

	s.started = false
	s.logger.Info(ctx, "risk service stopped", logger.Int64("processed", s.pool.Processed()))
	return errors.Join(errs...)
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Reload swaps in the model currently on disk. In-flight predictions finish on the old one.
func (s *Service) Reload(ctx context.Context) error {
	if err := s.loadModel(ctx); err != nil {
		return err
	}
	if err := s.loadValidation(ctx); err != nil {
		s.logger.Warn(ctx, "validation predictions not reloaded", logger.Error(err))
	}
	return nil
}

func (s *Service) loadModel(ctx context.Context) error {
	eng, err := s.artifacts.LoadEngine(ctx)
	if err != nil {
		return err
	}
	s.engine.Store(eng)
	s.logger.Info(ctx, "model loaded",
		logger.String("model_id", eng.ModelID()),
		logger.Int("features", len(eng.Features())),
	)
	return nil
}

func (s *Service) loadValidation(ctx context.Context) error {
	pairs, err := artifact.ReadValidation(s.cfg.ValidationPath)
	if err != nil {
		return err
	}
	s.validation.Store(&pairs)
	s.logger.Info(ctx, "validation predictions loaded", logger.Int("examples", len(pairs)))
	return nil
}

// ModelID returns the id of the loaded model, or "" when none is loaded.
func (s *Service) ModelID() string {
	if eng := s.engine.Load(); eng != nil {
		return eng.ModelID()
	}
	return ""
}

// Ingest validates and deduplicates a raw event and queues it for the workers.
// Events without an id get one derived from task, type and timestamp.
func (s *Service) Ingest(ctx context.Context, ev model.Event) error { //nolint:gocritic // hugeParam
	if !s.isStarted() {
		return ErrNotStarted
	}
	switch {
	case ev.TaskID == "":
		return fmt.Errorf("%w: task_id is required", ErrInvalidEvent)
	case !ev.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
	case ev.TS.IsZero():
		return fmt.Errorf("%w: ts is required", ErrInvalidEvent)
	}
	if ev.EventID == "" {
		ev.EventID = fmt.Sprintf("%s:%s:%d", ev.TaskID, ev.Type, ev.TS.UnixNano())
	}

	if s.deduper.SeenAndRecord(ctx, ev.EventID) {
		metrics.RecordEventDuplicate()
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.EventID)
	}
	if err := s.queue.Enqueue(ctx, ev); err != nil {
		// Let the producer retry the same id.
		s.deduper.Unrecord(ctx, ev.EventID)
		if errors.Is(err, eventqueue.ErrQueueFull) {
			return fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return err
	}
	metrics.RecordEventIngested(string(ev.Type))
	return nil
}

// Handle applies one queued event: the tracker folds it into the task record,
// derived and payload features are merged into the store, and the task is
// rescored. A delivered task is removed from the store instead.
func (s *Service) Handle(ctx context.Context, ev model.Event) error { //nolint:gocritic // hugeParam
	up, err := s.tracker.Apply(ctx, ev)
	if err != nil {
		switch {
		case errors.Is(err, aggregate.ErrTaskFinalized):
			metrics.RecordEventsDropped("finalized", 1)
		case errors.Is(err, model.ErrMilestoneOrder):
			metrics.RecordEventsDropped("milestone_order", 1)
		default:
			metrics.RecordEventsDropped("invalid", 1)
		}
		return err
	}
	metrics.UpdateTrackerOpenTasks(s.tracker.Len())

	if up.Finalized {
		metrics.RecordTaskFinalized()
		return s.store.Evict(ctx, ev.TaskID)
	}

	fields := s.extractor.Extract(up.Record)
	if len(ev.Features) > 0 {
		payload, err := features.FromMap(ev.Features)
		if err != nil {
			metrics.RecordEventsDropped("bad_payload", 1)
			s.logger.Warn(ctx, "feature payload ignored",
				logger.String("event_id", ev.EventID), logger.Error(err))
		}
		for k, v := range payload {
			fields[k] = v
		}
	}

	vec, err := s.store.Update(ctx, repository.Mutation{TaskID: ev.TaskID, Fields: fields, EventTime: ev.TS})
	if err != nil {
		return fmt.Errorf("store update %s: %w", ev.TaskID, err)
	}
	// A delivered event handled by another worker may have evicted the task
	// between Apply and Update.
	if s.tracker.IsFinalized(ctx, ev.TaskID) {
		return s.store.Evict(ctx, ev.TaskID)
	}
	if s.engine.Load() == nil {
		return nil
	}
	if _, err := s.decide(ctx, ev.TaskID, vec); err != nil {
		return fmt.Errorf("score %s: %w", ev.TaskID, err)
	}
	return nil
}

func (s *Service) onTrackerEvict(taskID, reason string) {
	ctx := context.Background()
	metrics.RecordStoreEviction("tracker_" + reason)
	if s.store != nil {
		if err := s.store.Evict(ctx, taskID); err != nil {
			s.logger.Warn(ctx, "evict after tracker eviction failed",
				logger.String("task_id", taskID), logger.Error(err))
		}
	}
}

// Score predicts breach probabilities for a batch of raw feature maps, in order.
func (s *Service) Score(ctx context.Context, items []map[string]any) ([]inference.BatchResult, error) {
	eng := s.engine.Load()
	if eng == nil {
		return nil, ErrModelUnavailable
	}
	start := time.Now()
	out := eng.PredictBatch(ctx, items)
	perItem := 0.0
	if len(items) > 0 {
		perItem = float64(time.Since(start).Microseconds()) / 1000 / float64(len(items))
	}
	for _, r := range out {
		if r.Err != nil {
			metrics.RecordPredictionError(errorKind(r.Err))
			continue
		}
		metrics.RecordPrediction(perItem)
	}
	return out, nil
}

// Features returns the stored feature vector of a task.
func (s *Service) Features(ctx context.Context, taskID string) (features.Vector, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	v, err := s.store.Get(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return v, err
}

// Risk scores a task's stored features and returns the decision.
func (s *Service) Risk(ctx context.Context, taskID string) (model.DecisionRecord, error) {
	if s.engine.Load() == nil {
		return model.DecisionRecord{}, ErrModelUnavailable
	}
	v, err := s.Features(ctx, taskID)
	if err != nil {
		return model.DecisionRecord{}, err
	}
	return s.decide(ctx, taskID, v)
}

func (s *Service) decide(ctx context.Context, taskID string, v features.Vector) (model.DecisionRecord, error) {
	eng := s.engine.Load()
	if eng == nil {
		return model.DecisionRecord{}, ErrModelUnavailable
	}
	start := time.Now()
	p, err := eng.PredictVector(v)
	if err != nil {
		metrics.RecordPredictionError(errorKind(err))
		return model.DecisionRecord{}, err
	}
	metrics.RecordPrediction(float64(time.Since(start).Microseconds()) / 1000)

	rec, err := s.decider.Decide(taskID, p, s.now())
	if err != nil {
		return model.DecisionRecord{}, err
	}
	s.recent.add(rec)
	metrics.RecordDecision(string(rec.Band))
	if rec.Band == model.BandHigh {
		s.logger.Info(ctx, "high risk task",
			logger.String("task_id", taskID),
			logger.Float64("probability", p),
			logger.String("action", rec.ActionCode))
	}
	return rec, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, inference.ErrMalformedFeature):
		return "malformed_feature"
	case errors.Is(err, inference.ErrPrediction):
		return "prediction"
	}
	return "other"
}

// RecentDecisions returns up to limit decisions, newest first.
func (s *Service) RecentDecisions(limit int) []model.DecisionRecord {
	return s.recent.latest(limit)
}

// Thresholds returns the decision band cutoffs in force.
func (s *Service) Thresholds() decision.Thresholds {
	return s.decider.Thresholds()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"workerCount":   s.cfg.WorkerCount,
		"queueCapacity": s.cfg.EventQueueSize,
		"storeBackend":  s.cfg.StoreBackend,
		"storeOrdering": s.cfg.StoreOrdering,
		"modelId":       s.ModelID(),
	}
	if p := s.validation.Load(); p != nil {
		stats["validationExamples"] = len(*p)
	}
	if s.started {
		queueLen := s.queue.Len(ctx)
		entries := s.store.Len(ctx)
		open := s.tracker.Len()

		stats["queueLength"] = queueLen
		stats["storeEntries"] = entries
		stats["openTasks"] = open
		stats["dedupeSize"] = s.deduper.Size()
		stats["processed"] = s.pool.Processed()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateStoreEntries(entries)
		metrics.UpdateTrackerOpenTasks(open)
	}
	return stats
}
