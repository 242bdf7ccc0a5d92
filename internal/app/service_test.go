package service_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/slarisk/internal/adapters/artifact"
	"github.com/okian/slarisk/internal/adapters/repository"
	service "github.com/okian/slarisk/internal/app"
	"github.com/okian/slarisk/internal/config"
	"github.com/okian/slarisk/internal/domain/classifier"
	"github.com/okian/slarisk/internal/domain/costsim"
	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/internal/domain/inference"
	"github.com/okian/slarisk/internal/domain/model"
	"github.com/okian/slarisk/pkg/logger"
)

// testPair scores p = sigmoid(2*log_distance - 1): LOW without a distance, HIGH at e-1 km.
func testPair() (inference.Artifact, inference.Manifest) {
	n := len(features.TaskSchema)
	w := make([]float64, n)
	mean := make([]float64, n)
	scale := make([]float64, n)
	for i, f := range features.TaskSchema {
		scale[i] = 1
		if f.Name == features.LogDistance {
			w[i] = 2
		}
	}
	a := inference.Artifact{
		ModelID:        "test-model",
		FeatureCount:   n,
		Classifier:     classifier.Model{Weights: w, Bias: -1, Mean: mean, Scale: scale},
		Encoders:       map[string][]string{},
		PositiveWeight: 1,
	}
	m := inference.Manifest{ModelID: "test-model", Features: features.TaskSchema}
	return a, m
}

func testEngine() *inference.Engine {
	e, err := inference.NewEngine(testPair())
	if err != nil {
		panic(err)
	}
	return e
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.New()
	cfg.WorkerCount = 2
	cfg.EventQueueSize = 100
	cfg.DedupeSize = 100
	cfg.ModelPath = filepath.Join(dir, "model.json")
	cfg.ManifestPath = filepath.Join(dir, "manifest.json")
	cfg.ValidationPath = filepath.Join(dir, "validation_predictions.csv")
	return cfg
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestService_New(t *testing.T) {
	Convey("Given a configuration with inverted thresholds", t, func() {
		cfg := testConfig(t)
		cfg.ThresholdMedium, cfg.ThresholdHigh = 0.8, 0.3

		Convey("Then the service refuses to start", func() {
			_, err := service.New(cfg)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a nil configuration", t, func() {
		svc, err := service.New(nil)
		Convey("Then defaults are used", func() {
			So(err, ShouldBeNil)
			So(svc.Thresholds().High, ShouldEqual, 0.70)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service without a model on disk", t, func() {
		ctx := context.Background()
		svc, err := service.New(testConfig(t), service.WithLogger(logger.NewNop()))
		So(err, ShouldBeNil)

		Convey("When used before Start", func() {
			err := svc.Ingest(ctx, model.Event{TaskID: "t1", Type: model.EventTaskCreated, TS: time.Now()})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldEqual, true)
			So(stats["modelId"], ShouldEqual, "")

			_, err := svc.Score(ctx, []map[string]any{{}})
			So(errors.Is(err, service.ErrModelUnavailable), ShouldBeTrue)

			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
		})
	})
}

func TestService_StartWithCorruptModel(t *testing.T) {
	Convey("Given a model file that is not a model document", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		So(os.WriteFile(cfg.ModelPath, []byte(`{"model_id":`), 0o600), ShouldBeNil)
		So(os.WriteFile(cfg.ManifestPath, []byte(`{}`), 0o600), ShouldBeNil)
		svc, err := service.New(cfg, service.WithLogger(logger.NewNop()))
		So(err, ShouldBeNil)

		Convey("Then Start fails instead of serving without a model", func() {
			err := svc.Start(ctx)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, inference.ErrArtifactMissing), ShouldBeFalse)
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
		})
	})
}

func TestService_StartWithHalfPair(t *testing.T) {
	for _, missing := range []string{"manifest", "model"} {
		Convey("Given a saved model pair whose "+missing+" was removed", t, func() {
			ctx := context.Background()
			cfg := testConfig(t)
			st, err := artifact.NewStore(cfg.ModelPath, cfg.ManifestPath)
			So(err, ShouldBeNil)
			a, m := testPair()
			So(st.Save(ctx, a, m), ShouldBeNil)
			if missing == "manifest" {
				So(os.Remove(cfg.ManifestPath), ShouldBeNil)
			} else {
				So(os.Remove(cfg.ModelPath), ShouldBeNil)
			}
			svc, err := service.New(cfg, service.WithLogger(logger.NewNop()))
			So(err, ShouldBeNil)

			Convey("Then Start refuses the pair", func() {
				err := svc.Start(ctx)
				So(errors.Is(err, inference.ErrManifestMismatch), ShouldBeTrue)
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})
	}

	Convey("Given a complete saved model pair", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		st, err := artifact.NewStore(cfg.ModelPath, cfg.ManifestPath)
		So(err, ShouldBeNil)
		a, m := testPair()
		So(st.Save(ctx, a, m), ShouldBeNil)
		svc, err := service.New(cfg, service.WithLogger(logger.NewNop()))
		So(err, ShouldBeNil)

		Convey("Then Start loads it", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()
			So(svc.ModelID(), ShouldEqual, "test-model")
		})
	})
}

// interleavingStore runs before once, just ahead of the next Update it forwards.
type interleavingStore struct {
	repository.FeatureStore
	before func()
}

func (s *interleavingStore) Update(ctx context.Context, m repository.Mutation) (features.Vector, error) {
	if fn := s.before; fn != nil {
		s.before = nil
		fn()
	}
	return s.FeatureStore.Update(ctx, m)
}

func TestService_LateUpdateAfterDelivery(t *testing.T) {
	Convey("Given a pickup whose store write lands after the task was delivered", t, func() {
		ctx := context.Background()
		inner, err := repository.NewMemoryStore(ctx)
		So(err, ShouldBeNil)
		defer inner.Close()
		st := &interleavingStore{FeatureStore: inner}

		svc, err := service.New(testConfig(t), service.WithStore(st), service.WithEngine(testEngine()))
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		So(svc.Handle(ctx, model.Event{TaskID: "t1", Type: model.EventTaskCreated, TS: created}), ShouldBeNil)

		st.before = func() {
			err := svc.Handle(ctx, model.Event{TaskID: "t1", Type: model.EventDelivered, TS: created.Add(40 * time.Minute)})
			So(err, ShouldBeNil)
		}
		err = svc.Handle(ctx, model.Event{TaskID: "t1", Type: model.EventPickup, TS: created.Add(10 * time.Minute)})

		Convey("Then the delivered task does not reappear in the store", func() {
			So(err, ShouldBeNil)
			_, err := inner.Get(ctx, "t1")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_OnlineFlow(t *testing.T) {
	Convey("Given a started service with a model", t, func() {
		ctx := context.Background()
		svc, err := service.New(testConfig(t), service.WithEngine(testEngine()))
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		d := math.E - 1

		Convey("When a task is created with a feature payload", func() {
			err := svc.Ingest(ctx, model.Event{
				EventID: "e1", TaskID: "t1", Type: model.EventTaskCreated, TS: created,
				Weather: "Rain", DistanceKM: &d,
				Features: map[string]any{"traffic_index": 0.4},
			})
			So(err, ShouldBeNil)

			var v features.Vector
			So(eventually(func() bool {
				v, err = svc.Features(ctx, "t1")
				return err == nil
			}), ShouldBeTrue)

			Convey("Then derived and payload features are stored", func() {
				So(v[features.LogDistance].Num, ShouldAlmostEqual, 1.0)
				So(v[features.Weather].Cat, ShouldEqual, "Rain")
				So(v[features.HourOfDay].Num, ShouldEqual, 10)
				So(v["traffic_index"].Num, ShouldEqual, 0.4)
			})

			Convey("Then the task was scored and its decision recorded", func() {
				So(eventually(func() bool { return len(svc.RecentDecisions(10)) > 0 }), ShouldBeTrue)
				rec := svc.RecentDecisions(1)[0]
				So(rec.TaskID, ShouldEqual, "t1")
				So(rec.Band, ShouldEqual, model.BandHigh)
				So(rec.ActionCode, ShouldEqual, "ACT_001")
			})

			Convey("Then the risk endpoint decides on stored features", func() {
				rec, err := svc.Risk(ctx, "t1")
				So(err, ShouldBeNil)
				So(rec.Probability, ShouldAlmostEqual, 1/(1+math.Exp(-1)), 1e-9)
				So(rec.RiskScore, ShouldEqual, 73)
			})

			Convey("Then replaying the same event id is rejected", func() {
				err := svc.Ingest(ctx, model.Event{EventID: "e1", TaskID: "t1", Type: model.EventTaskCreated, TS: created})
				So(errors.Is(err, service.ErrDuplicateEvent), ShouldBeTrue)
			})

			Convey("And the task is delivered", func() {
				So(svc.Ingest(ctx, model.Event{EventID: "e2", TaskID: "t1", Type: model.EventDelivered, TS: created.Add(time.Hour)}), ShouldBeNil)

				Convey("Then it leaves the feature store", func() {
					So(eventually(func() bool {
						_, err := svc.Features(ctx, "t1")
						return errors.Is(err, service.ErrTaskNotFound)
					}), ShouldBeTrue)
				})
			})
		})

		Convey("When events are malformed", func() {
			So(errors.Is(svc.Ingest(ctx, model.Event{Type: model.EventPickup, TS: created}), service.ErrInvalidEvent), ShouldBeTrue)
			So(errors.Is(svc.Ingest(ctx, model.Event{TaskID: "t1", Type: "LOST", TS: created}), service.ErrInvalidEvent), ShouldBeTrue)
			So(errors.Is(svc.Ingest(ctx, model.Event{TaskID: "t1", Type: model.EventPickup}), service.ErrInvalidEvent), ShouldBeTrue)
		})

		Convey("When an unknown task is queried", func() {
			_, err := svc.Risk(ctx, "nope")
			So(errors.Is(err, service.ErrTaskNotFound), ShouldBeTrue)
		})

		Convey("When a batch is scored", func() {
			res, err := svc.Score(ctx, []map[string]any{
				{features.LogDistance: 0.5, "extra": "ignored"},
				{features.LogDistance: "far"},
				{},
			})
			So(err, ShouldBeNil)

			Convey("Then results keep request order and fail per item", func() {
				So(len(res), ShouldEqual, 3)
				So(res[0].Err, ShouldBeNil)
				So(res[0].Probability, ShouldAlmostEqual, 0.5, 1e-9)
				So(errors.Is(res[1].Err, inference.ErrMalformedFeature), ShouldBeTrue)
				So(res[2].Probability, ShouldAlmostEqual, 1/(1+math.E), 1e-9)
			})
		})
	})
}

func TestService_Simulate(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		pairs := []costsim.Pair{{Label: 1, Prob: 0.9}, {Label: 0, Prob: 0.6}, {Label: 1, Prob: 0.3}, {Label: 0, Prob: 0.1}}

		Convey("When no validation predictions are available", func() {
			svc, err := service.New(testConfig(t))
			So(err, ShouldBeNil)
			_, err = svc.Simulate(ctx, service.SimulationRequest{Threshold: 0.5})
			So(errors.Is(err, service.ErrNoValidation), ShouldBeTrue)

			Convey("Then inline pairs are used", func() {
				rep, err := svc.Simulate(ctx, service.SimulationRequest{Threshold: 0.5, Pairs: pairs})
				So(err, ShouldBeNil)
				So(rep.Simulation.Candidate.TotalCost, ShouldEqual, 110)
				So(rep.Simulation.Candidate.FN, ShouldEqual, 1)
				So(rep.Simulation.Candidate.FP, ShouldEqual, 1)
			})
		})

		Convey("When validation predictions are installed", func() {
			svc, err := service.New(testConfig(t), service.WithValidation(pairs))
			So(err, ShouldBeNil)
			fn, fp := 200.0, 1.0
			rep, err := svc.Simulate(ctx, service.SimulationRequest{Threshold: 0.2, CostFN: &fn, CostFP: &fp, Points: 5})

			Convey("Then overrides and curve resolution are honoured", func() {
				So(err, ShouldBeNil)
				So(rep.Examples, ShouldEqual, 4)
				So(rep.Costs.FN, ShouldEqual, 200)
				So(len(rep.Curve), ShouldEqual, 5)
				So(rep.Simulation.Candidate.FN, ShouldEqual, 0)
				So(rep.Simulation.Candidate.TotalCost, ShouldEqual, 1)
				So(rep.RiskExposure, ShouldAlmostEqual, 1.9*200)
			})

			Convey("Then the recommendation is the cheapest point of the returned curve", func() {
				So(err, ShouldBeNil)
				So(rep.Recommended, ShouldResemble, costsim.Cheapest(rep.Curve))
				for _, p := range rep.Curve {
					So(p.TotalCost, ShouldBeGreaterThanOrEqualTo, rep.Recommended.TotalCost)
				}
			})

			Convey("Then the risk summary uses the decision bands", func() {
				sum, err := svc.RiskSummary(ctx)
				So(err, ShouldBeNil)
				So(sum.TotalDeliveries, ShouldEqual, 4)
				So(sum.Distribution[model.BandHigh], ShouldEqual, 1)
				So(sum.Distribution[model.BandMedium], ShouldEqual, 1)
				So(sum.Distribution[model.BandLow], ShouldEqual, 2)
			})
		})

		Convey("When the threshold is out of range", func() {
			svc, _ := service.New(testConfig(t), service.WithValidation(pairs))
			_, err := svc.Simulate(ctx, service.SimulationRequest{Threshold: 1.5})
			So(errors.Is(err, service.ErrInvalidSimulation), ShouldBeTrue)
		})
	})
}
