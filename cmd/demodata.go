package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/slarisk/internal/app"
	"github.com/okian/slarisk/internal/demodata"
)

type demoResult struct {
	Files  demodata.Files        `json:"files"`
	Train  *service.TrainReport  `json:"train,omitempty"`
	Replay *demodata.ReplayStats `json:"replay,omitempty"`
}

func newDemoDataCmd(c *cli) *cobra.Command {
	cfg := demodata.DefaultConfig()
	var (
		out     string
		start   string
		train   bool
		replay  string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "demo-data",
		Short: "Generate a synthetic delivery dataset, optionally train on it and replay its live stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if start != "" {
				t, err := time.Parse(time.DateOnly, start)
				if err != nil {
					return fmt.Errorf("start: %w", err)
				}
				cfg.Start = t
			}
			ds, err := demodata.Generate(ctx, cfg, demodata.WithLogger(c.log.Named("demodata")))
			if err != nil {
				return err
			}
			files, err := demodata.WriteDir(out, ds)
			if err != nil {
				return err
			}
			res := demoResult{Files: files}

			if train {
				p, err := service.NewPipeline(c.cfg, service.WithPipelineLogger(c.log.Named("train")))
				if err != nil {
					return err
				}
				if res.Train, err = p.Run(ctx, files.TrainingSources()); err != nil {
					return err
				}
			}
			if replay != "" {
				stats, err := demodata.NewReplayer(replay, workers, nil,
					demodata.WithLogger(c.log.Named("replay"))).Replay(ctx, ds.Stream)
				if err != nil {
					return err
				}
				res.Replay = &stats
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&out, "out", "data/demo", "output directory")
	f.IntVar(&cfg.HistoryTasks, "history", cfg.HistoryTasks, "historical tasks to generate")
	f.IntVar(&cfg.StreamTasks, "stream", cfg.StreamTasks, "live tasks to emit as events")
	f.IntVar(&cfg.Couriers, "couriers", cfg.Couriers, "courier pool size")
	f.IntVar(&cfg.TrajectoryCouriers, "trajectory-couriers", cfg.TrajectoryCouriers, "couriers reporting GPS pings only")
	f.IntVar(&cfg.Days, "days", cfg.Days, "days of history")
	f.StringVar(&start, "start", "", "first history day, YYYY-MM-DD (default "+cfg.Start.Format(time.DateOnly)+")")
	f.Float64Var(&cfg.PromiseMinutes, "promise-minutes", cfg.PromiseMinutes, "promised delivery allowance")
	f.Float64Var(&cfg.MissingPromiseRate, "missing-promise-rate", cfg.MissingPromiseRate, "share of tasks without a promise time")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	f.BoolVar(&train, "train", false, "train a model on the generated history")
	f.StringVar(&replay, "replay", "", "base URL of a running service to replay the live stream against")
	f.IntVar(&workers, "workers", 8, "concurrent replay workers")
	return cmd
}
