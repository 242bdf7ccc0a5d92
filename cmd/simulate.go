package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/slarisk/internal/adapters/artifact"
	service "github.com/okian/slarisk/internal/app"
)

func newSimulateCmd(c *cli) *cobra.Command {
	var (
		req        service.SimulationRequest
		costFN     float64
		costFP     float64
		validation string
		summary    bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Price an intervention threshold against the validation predictions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := validation
			if path == "" {
				path = c.cfg.ValidationPath
			}
			pairs, err := artifact.ReadValidation(path)
			if err != nil {
				return err
			}
			svc, err := service.New(c.cfg,
				service.WithLogger(c.log.Named("simulate")),
				service.WithValidation(pairs),
			)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("cost-fn") {
				req.CostFN = &costFN
			}
			if cmd.Flags().Changed("cost-fp") {
				req.CostFP = &costFP
			}

			if summary {
				sum, err := svc.RiskSummary(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sum)
			}
			rep, err := svc.Simulate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().Float64Var(&req.Threshold, "threshold", 0.5, "candidate intervention threshold in [0,1]")
	cmd.Flags().Float64Var(&costFN, "cost-fn", 0, "unit cost of a missed breach (default: config cost_fn)")
	cmd.Flags().Float64Var(&costFP, "cost-fp", 0, "unit cost of an unneeded intervention (default: config cost_fp)")
	cmd.Flags().IntVar(&req.Points, "points", 0, "cost curve resolution (default: config curve_points)")
	cmd.Flags().StringVar(&validation, "validation", "", "validation predictions CSV (default: config validation_path)")
	cmd.Flags().BoolVar(&summary, "summary", false, "print the risk band summary instead of a simulation")
	return cmd
}
