package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/slarisk/internal/adapters/artifact"
	"github.com/okian/slarisk/internal/adapters/dataset"
	service "github.com/okian/slarisk/internal/app"
	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/internal/domain/training"
)

// writeTasks writes n tasks an hour apart; every other task breaches the 60 minute tier.
func writeTasks(t *testing.T, dir string, n int) string {
	var b strings.Builder
	b.WriteString("task_id,weather,vehicle_type,distance_km,created_at,delivered_at\n")
	t0 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		created := t0.Add(time.Duration(i) * time.Hour)
		took, dist, weather := 30*time.Minute, 1.0, "Sunny"
		if i%2 == 1 {
			took, dist, weather = 95*time.Minute, 9.0, "Rain"
		}
		fmt.Fprintf(&b, "t%03d,%s,bike,%g,%s,%s\n", i, weather, dist,
			created.Format(time.RFC3339), created.Add(took).Format(time.RFC3339))
	}
	p := filepath.Join(dir, "tasks.csv")
	if err := os.WriteFile(p, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPipeline(t *testing.T) {
	Convey("Given a task table with both outcomes", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		src := dataset.Sources{Tasks: []string{writeTasks(t, t.TempDir(), 40)}}

		p, err := service.NewPipeline(cfg)
		So(err, ShouldBeNil)

		Convey("When the pipeline runs", func() {
			rep, err := p.Run(ctx, src)
			So(err, ShouldBeNil)

			Convey("Then it reports a time-ordered split", func() {
				So(rep.Rows.Rows, ShouldEqual, 40)
				So(rep.Rows.Positives, ShouldEqual, 20)
				So(rep.TrainRows, ShouldEqual, 32)
				So(rep.ValidationRows, ShouldEqual, 8)
				So(rep.TrainEnd.Before(rep.ValidationFrom), ShouldBeTrue)
				So(rep.PositiveWeight, ShouldEqual, 1)
				So(rep.AUC, ShouldNotBeNil)
				So(*rep.AUC, ShouldBeGreaterThan, 0.9)
			})

			Convey("Then it ranks the delay drivers", func() {
				So(rep.FeatureImportance, ShouldHaveLength, len(features.TaskSchema))
				So(rep.FeatureImportance[0].Importance, ShouldBeGreaterThan, 0)
				for i := 1; i < len(rep.FeatureImportance); i++ {
					So(rep.FeatureImportance[i-1].Importance, ShouldBeGreaterThanOrEqualTo,
						rep.FeatureImportance[i].Importance)
				}
			})

			Convey("Then the published files load into a service", func() {
				pairs, err := artifact.ReadValidation(cfg.ValidationPath)
				So(err, ShouldBeNil)
				So(len(pairs), ShouldEqual, 8)

				svc, err := service.New(cfg)
				So(err, ShouldBeNil)
				So(svc.Reload(ctx), ShouldBeNil)
				So(svc.ModelID(), ShouldEqual, rep.ModelID)

				res, err := svc.Score(ctx, []map[string]any{
					{"log_distance": 2.3, "weather": "Rain"},
					{"log_distance": 0.69, "weather": "Sunny"},
				})
				So(err, ShouldBeNil)
				So(res[0].Probability, ShouldBeGreaterThan, res[1].Probability)
			})
		})

		Convey("When no files are given", func() {
			_, err := p.Run(ctx, dataset.Sources{})
			So(errors.Is(err, training.ErrInsufficientData), ShouldBeTrue)
		})

		Convey("When every task is on time", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "ontime.csv")
			So(os.WriteFile(path, []byte("task_id,created_at,delivered_at\n"+
				"a,2026-03-02T10:00:00Z,2026-03-02T10:10:00Z\n"+
				"b,2026-03-02T11:00:00Z,2026-03-02T11:10:00Z\n"), 0o600), ShouldBeNil)
			_, err := p.Run(ctx, dataset.Sources{Tasks: []string{path}})

			Convey("Then training fails and nothing is published", func() {
				So(err, ShouldNotBeNil)
				_, statErr := os.Stat(cfg.ModelPath)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})
	})
}
