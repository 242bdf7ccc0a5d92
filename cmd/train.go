package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/slarisk/internal/adapters/dataset"
	service "github.com/okian/slarisk/internal/app"
)

type trainFlags struct {
	src      dataset.Sources
	tier     string
	location string
}

func newTrainCmd(c *cli) *cobra.Command {
	var f trainFlags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a breach model from historical tasks, events and trajectories",
		Long: `Train aggregates the given datasets into task records, labels them against
their promise time (or the SLA tier when none is recorded), fits the classifier on
the earliest rows and publishes the model, its manifest and the validation
predictions to the configured paths.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []service.PipelineOption{
				service.WithPipelineLogger(c.log.Named("train")),
				service.WithTier(f.tier),
			}
			if f.location != "" {
				loc, err := time.LoadLocation(f.location)
				if err != nil {
					return fmt.Errorf("location: %w", err)
				}
				opts = append(opts, service.WithReader(dataset.NewReader(dataset.WithLocation(loc))))
			}
			p, err := service.NewPipeline(c.cfg, opts...)
			if err != nil {
				return err
			}
			rep, err := p.Run(cmd.Context(), f.src)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringSliceVar(&f.src.Tasks, "tasks", nil, "task table CSV files")
	cmd.Flags().StringSliceVar(&f.src.Events, "events", nil, "raw event JSONL files")
	cmd.Flags().StringSliceVar(&f.src.Trajectories, "trajectories", nil, "courier trajectory CSV files")
	cmd.Flags().StringVar(&f.tier, "tier", "", "SLA tier for tasks without a promise time (default: config default_tier)")
	cmd.Flags().StringVar(&f.location, "location", "", "IANA time zone of naive dataset timestamps (default UTC)")
	return cmd
}
