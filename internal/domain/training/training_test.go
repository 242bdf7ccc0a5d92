package training_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/internal/domain/inference"
	"github.com/okian/slarisk/internal/domain/labels"
	"github.com/okian/slarisk/internal/domain/model"
	"github.com/okian/slarisk/internal/domain/training"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

// hourlyRows builds n rows, one per hour, where tasks started from 16h on breach.
func hourlyRows(n int) []training.Row {
	ex := features.NewExtractor()
	rows := make([]training.Row, n)
	for i := range rows {
		ts := t0.Add(time.Duration(i) * time.Hour)
		label := 0
		if ts.Hour() >= 16 {
			label = 1
		}
		weather := "sunny"
		if i%3 == 0 {
			weather = "rain"
		}
		rows[i] = training.Row{
			TaskID: "t",
			Vector: ex.Extract(model.TaskRecord{Created: &ts, Weather: weather}),
			Label:  label,
			TS:     ts,
		}
	}
	return rows
}

func TestSplit(t *testing.T) {
	Convey("Given rows in random order", t, func() {
		rows := hourlyRows(50)
		rng := rand.New(rand.NewSource(3))
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

		Convey("When splitting 80/20", func() {
			train, valid, err := training.Split(rows, 0.8)

			Convey("Then no validation row precedes a training row", func() {
				So(err, ShouldBeNil)
				So(len(train), ShouldEqual, 40)
				So(len(valid), ShouldEqual, 10)
				var maxTrain time.Time
				for _, r := range train {
					if r.TS.After(maxTrain) {
						maxTrain = r.TS
					}
				}
				for _, r := range valid {
					So(maxTrain.After(r.TS), ShouldBeFalse)
				}
			})

			Convey("Then the input slice is left untouched", func() {
				So(len(rows), ShouldEqual, 50)
			})
		})

		Convey("When there are too few rows for both partitions", func() {
			_, _, err := training.Split(rows[:1], 0.8)
			So(errors.Is(err, training.ErrInsufficientData), ShouldBeTrue)
		})

		Convey("When the fraction is out of range", func() {
			_, _, err := training.Split(rows, 1)
			So(errors.Is(err, training.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestPositiveWeight(t *testing.T) {
	Convey("Given a training partition", t, func() {
		rows := make([]training.Row, 10)
		rows[0].Label, rows[1].Label = 1, 1

		Convey("Then the weight is negatives over positives", func() {
			w, err := training.PositiveWeight(rows)
			So(err, ShouldBeNil)
			So(w, ShouldEqual, 4)
		})

		Convey("Then a partition without positives is an error", func() {
			_, err := training.PositiveWeight(rows[2:])
			So(errors.Is(err, training.ErrNoPositives), ShouldBeTrue)
		})
	})
}

func TestTrain(t *testing.T) {
	Convey("Given a trainer and hourly rows", t, func() {
		tr := training.NewTrainer(training.WithTrainFraction(0.8))
		ctx := context.Background()

		Convey("When training", func() {
			res, err := tr.Train(ctx, hourlyRows(100))

			Convey("Then artifact and manifest form a loadable pair", func() {
				So(err, ShouldBeNil)
				So(res.Artifact.ModelID, ShouldNotBeEmpty)
				So(res.Manifest.ModelID, ShouldEqual, res.Artifact.ModelID)
				So(res.Manifest.Features.Names(), ShouldResemble, features.TaskSchema.Names())
				_, err := inference.NewEngine(res.Artifact, res.Manifest)
				So(err, ShouldBeNil)
			})

			Convey("Then validation predictions cover the latest 20 percent", func() {
				So(res.TrainRows, ShouldEqual, 80)
				So(len(res.Validation), ShouldEqual, 20)
				So(res.TrainEnd.After(res.ValidationStart), ShouldBeFalse)
			})

			Convey("Then discrimination is reported and better than chance", func() {
				So(res.AUC, ShouldBeGreaterThan, 0.5)
				So(res.Artifact.ValidationAUC, ShouldNotBeNil)
			})

			Convey("Then every schema feature is ranked by its weight", func() {
				So(res.Importance, ShouldHaveLength, len(features.TaskSchema))
				for i := 1; i < len(res.Importance); i++ {
					So(res.Importance[i-1].Importance, ShouldBeGreaterThanOrEqualTo, res.Importance[i].Importance)
				}
			})

			Convey("Then encoders are fit on the training partition", func() {
				So(res.Artifact.Encoders[features.Weather], ShouldResemble, []string{"rain", "sunny"})
			})
		})

		Convey("When the training partition has no breaches", func() {
			rows := hourlyRows(100)
			for i := range rows {
				rows[i].Label = 0
			}
			_, err := tr.Train(ctx, rows)
			So(errors.Is(err, training.ErrNoPositives), ShouldBeTrue)
		})
	})
}

func TestBuildRows(t *testing.T) {
	Convey("Given finalized and unfinished records", t, func() {
		gen, err := labels.NewGenerator(labels.DefaultTiers(), "instant")
		So(err, ShouldBeNil)
		start := t0.Add(9 * time.Hour)
		late, early, skewed := start.Add(90*time.Minute), start.Add(30*time.Minute), start.Add(-time.Minute)
		promise := start.Add(10 * time.Minute)

		recs := []model.TaskRecord{
			{TaskID: "late", Created: &start, Delivered: &late},
			{TaskID: "early", Created: &start, Delivered: &early},
			{TaskID: "open", Created: &start},
			{TaskID: "skew", Created: &start, Delivered: &skewed},
			{TaskID: "traj", Assigned: &start, Delivered: &early, Promise: &promise, Synthetic: true},
		}

		Convey("When building rows", func() {
			rows, rep, err := training.BuildRows(recs, features.NewExtractor(), gen, "")

			Convey("Then unlabelable records are excluded and counted", func() {
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 3)
				So(rep.Incomplete, ShouldEqual, 1)
				So(rep.BadLabels, ShouldEqual, 1)
				So(rep.Positives, ShouldEqual, 2)
				So(rep.Synthetic, ShouldEqual, 1)
				So(rows[0].TS, ShouldEqual, start)
			})
		})
	})
}
