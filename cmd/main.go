package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/slarisk/internal/config"
	"github.com/okian/slarisk/pkg/logger"
)

const envConfigFile = "SLARISK_CONFIG"

// cli carries state shared by subcommands after the root pre-run.
type cli struct {
	configPath string
	cfg        *config.Config
	log        logger.Logger
}

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("slarisk: " + err.Error() + "\n")
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "slarisk",
		Short:         "Predict and price SLA breach risk of last-mile deliveries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "",
		"YAML config file (overrides "+envConfigFile+")")

	root.AddCommand(
		newServeCmd(c),
		newTrainCmd(c),
		newSimulateCmd(c),
		newDemoDataCmd(c),
	)
	return root
}

// setup initializes logging and loads configuration (defaults -> optional file -> env).
func (c *cli) setup(ctx context.Context) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	c.log = logger.Get()

	if c.configPath != "" {
		if err := os.Setenv(envConfigFile, c.configPath); err != nil {
			return fmt.Errorf("set %s: %w", envConfigFile, err)
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
