package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When it is initialized", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Get returns a usable logger", func() {
				l := Get()
				So(l, ShouldNotBeNil)
				So(func() { l.Info(context.Background(), "hello", String("k", "v")) }, ShouldNotPanic)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with a nil writer", func() {
			So(InitWithWriter(nil), ShouldNotBeNil)
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWithWriter(&buf), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with fields on a named child", func() {
			Named("trainer").With(String("run", "r1")).Info(ctx, "training finished",
				Int("rows", 10),
				Float64("auc", 0.75),
				Bool("synthetic", false),
				Duration("took", time.Second),
				Error(errors.New("boom")),
			)
			out := buf.String()

			Convey("Then the record carries the component, bound and call fields", func() {
				So(out, ShouldContainSubstring, "training finished")
				So(out, ShouldContainSubstring, "component=trainer")
				So(out, ShouldContainSubstring, "run=r1")
				So(out, ShouldContainSubstring, "rows=10")
				So(out, ShouldContainSubstring, "error=boom")
				So(out, ShouldContainSubstring, "source=")
			})
		})

		Convey("When the level is raised to error", func() {
			So(SetLevelString("error"), ShouldBeNil)
			Get().Info(ctx, "should be hidden")
			Get().Error(ctx, "should be shown")

			Convey("Then only the error record is written", func() {
				So(buf.String(), ShouldNotContainSubstring, "should be hidden")
				So(buf.String(), ShouldContainSubstring, "should be shown")
			})
			So(SetLevelString("info"), ShouldBeNil)
		})

		Convey("When an unknown level is given", func() {
			So(SetLevelString("loud"), ShouldNotBeNil)
		})
	})
}

func TestNopLogger(t *testing.T) {
	Convey("Given a nop logger", t, func() {
		l := NewNop()

		Convey("Then every method is safe, including with a nil context", func() {
			So(func() {
				l.Debug(nil, "x") //nolint:staticcheck // nil ctx is tolerated
				l.Warn(context.Background(), "x")
				l.Named("a").With(Int("b", 1)).Error(context.Background(), "x")
			}, ShouldNotPanic)
		})
	})
}
