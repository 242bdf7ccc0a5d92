package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/slarisk/internal/domain/training"
)

func run(ctx context.Context, args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then every subcommand should be registered", func() {
			var names []string
			for _, c := range root.Commands() {
				names = append(names, c.Name())
			}
			convey.So(names, convey.ShouldContain, "serve")
			convey.So(names, convey.ShouldContain, "train")
			convey.So(names, convey.ShouldContain, "simulate")
			convey.So(names, convey.ShouldContain, "demo-data")
		})
	})
}

func TestSetup(t *testing.T) {
	t.Setenv("SLARISK_ADDR", ":8080")
	t.Setenv("SLARISK_QUEUE_SIZE", "1000")
	t.Setenv("SLARISK_WORKER_COUNT", "4")

	convey.Convey("Given configuration in the environment", t, func() {
		c := &cli{}
		err := c.setup(context.Background())

		convey.Convey("Then it should be loaded over the defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(c.cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(c.cfg.EventQueueSize, convey.ShouldEqual, 1000)
			convey.So(c.cfg.WorkerCount, convey.ShouldEqual, 4)
			convey.So(c.log, convey.ShouldNotBeNil)
		})
	})
}

func TestSetupInvalidConfig(t *testing.T) {
	t.Setenv("SLARISK_THRESHOLD_MEDIUM", "0.9")
	t.Setenv("SLARISK_THRESHOLD_HIGH", "0.5")

	convey.Convey("Given inverted thresholds", t, func() {
		_, err := run(context.Background(), "simulate")
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(err.Error(), convey.ShouldContainSubstring, "failed to load config")
	})
}

type demoOutput struct {
	Files struct {
		Tasks string `json:"tasks"`
	} `json:"files"`
	Train struct {
		ModelID        string   `json:"model_id"`
		ValidationRows int      `json:"validation_rows"`
		AUC            *float64 `json:"validation_auc"`
	} `json:"train"`
}

type simulateOutput struct {
	Examples int `json:"examples"`
	Costs    struct {
		FN float64 `json:"cost_fn"`
		FP float64 `json:"cost_fp"`
	} `json:"costs"`
	Curve []json.RawMessage `json:"curve"`
}

func TestDemoTrainSimulate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SLARISK_MODEL_PATH", filepath.Join(dir, "model.json"))
	t.Setenv("SLARISK_MANIFEST_PATH", filepath.Join(dir, "manifest.json"))
	t.Setenv("SLARISK_VALIDATION_PATH", filepath.Join(dir, "validation.csv"))

	convey.Convey("Given a generated demo dataset trained in one step", t, func() {
		ctx := context.Background()
		out, err := run(ctx, "demo-data",
			"--out", filepath.Join(dir, "demo"),
			"--history", "400", "--stream", "5", "--days", "4", "--trajectory-couriers", "5",
			"--train")
		convey.So(err, convey.ShouldBeNil)

		var demo demoOutput
		convey.So(json.Unmarshal([]byte(out), &demo), convey.ShouldBeNil)
		convey.So(demo.Train.ModelID, convey.ShouldNotBeEmpty)
		convey.So(demo.Train.ValidationRows, convey.ShouldBeGreaterThan, 0)
		convey.So(demo.Files.Tasks, convey.ShouldEndWith, "tasks.csv")
		_, err = os.Stat(filepath.Join(dir, "model.json"))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then simulate should price the validation predictions", func() {
			out, err := run(ctx, "simulate", "--threshold", "0.3", "--cost-fn", "200")
			convey.So(err, convey.ShouldBeNil)
			var rep simulateOutput
			convey.So(json.Unmarshal([]byte(out), &rep), convey.ShouldBeNil)
			convey.So(rep.Examples, convey.ShouldEqual, demo.Train.ValidationRows)
			convey.So(rep.Costs.FN, convey.ShouldEqual, 200)
			convey.So(rep.Costs.FP, convey.ShouldEqual, 10)
			convey.So(rep.Curve, convey.ShouldNotBeEmpty)

			out, err = run(ctx, "simulate", "--summary")
			convey.So(err, convey.ShouldBeNil)
			var sum struct {
				Total int `json:"total_deliveries"`
			}
			convey.So(json.Unmarshal([]byte(out), &sum), convey.ShouldBeNil)
			convey.So(sum.Total, convey.ShouldEqual, demo.Train.ValidationRows)
		})

		convey.Convey("Then train without datasets should fail", func() {
			_, err := run(ctx, "train")
			convey.So(errors.Is(err, training.ErrInsufficientData), convey.ShouldBeTrue)
		})
	})
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Setenv("SLARISK_ADDR", "127.0.0.1:0")
	t.Setenv("SLARISK_MODEL_PATH", filepath.Join(t.TempDir(), "model.json"))
	t.Setenv("SLARISK_WORKER_COUNT", "2")

	convey.Convey("Given a running server", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		convey.Convey("Then cancelling the context should stop it cleanly", func() {
			_, err := run(ctx, "serve")
			convey.So(err, convey.ShouldBeNil)
		})
	})
}
