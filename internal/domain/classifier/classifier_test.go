package classifier_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/slarisk/internal/domain/classifier"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFit(t *testing.T) {
	Convey("Given a separable dataset", t, func() {
		var (
			x [][]float64
			y []int
		)
		for i := 0; i < 40; i++ {
			v := float64(i)
			x = append(x, []float64{v, 3})
			if i >= 30 {
				y = append(y, 1)
			} else {
				y = append(y, 0)
			}
		}
		ctx := context.Background()

		Convey("When fitting with a positive weight", func() {
			m, rep, err := classifier.Fit(ctx, x, y, 3, classifier.DefaultHyperparams())

			Convey("Then the model ranks positives above negatives", func() {
				So(err, ShouldBeNil)
				So(rep.Epochs, ShouldBeGreaterThan, 0)
				lo, _ := m.Predict([]float64{2, 3})
				hi, _ := m.Predict([]float64{38, 3})
				So(lo, ShouldBeLessThan, 0.5)
				So(hi, ShouldBeGreaterThan, 0.5)
				So(m.Check(), ShouldBeNil)
			})

			Convey("Then a constant column does not break standardisation", func() {
				So(m.Scale[1], ShouldEqual, 1)
			})

			Convey("Then fitting is deterministic", func() {
				again, _, _ := classifier.Fit(ctx, x, y, 3, classifier.DefaultHyperparams())
				So(again.Weights, ShouldResemble, m.Weights)
			})

			Convey("Then predicting a row of the wrong width fails", func() {
				_, err := m.Predict([]float64{1})
				So(errors.Is(err, classifier.ErrShapeMismatch), ShouldBeTrue)
			})
		})

		Convey("When inputs are inconsistent", func() {
			_, _, err := classifier.Fit(ctx, nil, nil, 1, classifier.DefaultHyperparams())
			So(errors.Is(err, classifier.ErrEmptyInput), ShouldBeTrue)

			_, _, err = classifier.Fit(ctx, x, y[:3], 1, classifier.DefaultHyperparams())
			So(errors.Is(err, classifier.ErrShapeMismatch), ShouldBeTrue)

			_, _, err = classifier.Fit(ctx, x, y, 0, classifier.DefaultHyperparams())
			So(errors.Is(err, classifier.ErrInvalidParam), ShouldBeTrue)
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, _, err := classifier.Fit(cctx, x, y, 1, classifier.DefaultHyperparams())
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestAUC(t *testing.T) {
	Convey("Given labels and probabilities", t, func() {
		Convey("Then a perfect ranking scores 1", func() {
			So(classifier.AUC([]int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}), ShouldEqual, 1)
		})

		Convey("Then an inverted ranking scores 0", func() {
			So(classifier.AUC([]int{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}), ShouldEqual, 0)
		})

		Convey("Then ties count half", func() {
			So(classifier.AUC([]int{0, 1}, []float64{0.5, 0.5}), ShouldEqual, 0.5)
		})

		Convey("Then the end-to-end validation pairs score 0.75", func() {
			So(classifier.AUC([]int{1, 0, 1, 0}, []float64{0.9, 0.2, 0.3, 0.6}), ShouldEqual, 0.75)
		})

		Convey("Then a single class is undefined", func() {
			So(math.IsNaN(classifier.AUC([]int{1, 1}, []float64{0.2, 0.3})), ShouldBeTrue)
		})
	})
}

func TestImportance(t *testing.T) {
	Convey("Given a fitted model", t, func() {
		m := &classifier.Model{
			Weights: []float64{0.2, -1.5, 0.9, 0.2},
			Mean:    []float64{0, 0, 0, 0},
			Scale:   []float64{1, 1, 1, 1},
		}

		Convey("Then features rank by absolute weight, largest first", func() {
			imp, err := m.Importance([]string{"hour", "distance", "weather", "city"})
			So(err, ShouldBeNil)
			So(imp, ShouldHaveLength, 4)
			So(imp[0], ShouldResemble, classifier.Importance{Feature: "distance", Weight: -1.5, Importance: 1.5})
			So(imp[1].Feature, ShouldEqual, "weather")
			So(imp[2].Feature, ShouldEqual, "hour")
			So(imp[3].Feature, ShouldEqual, "city")
		})

		Convey("Then names must match the weights", func() {
			_, err := m.Importance([]string{"hour"})
			So(errors.Is(err, classifier.ErrShapeMismatch), ShouldBeTrue)
		})
	})
}
