package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/slarisk/internal/adapters/http/api"
	"github.com/okian/slarisk/internal/adapters/http/swagger"
	service "github.com/okian/slarisk/internal/app"
	"github.com/okian/slarisk/pkg/logger"
	"github.com/okian/slarisk/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the online scoring API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	svc, err := service.New(c.cfg, service.WithLogger(c.log.Named("service")))
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			c.log.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()

	go startServiceMetricsUpdater(ctx, svc)
	go c.reloadOnHangup(ctx, svc)

	mux := http.NewServeMux()
	api.NewServer(svc,
		api.WithRateLimit(c.cfg.RateLimitRPS),
		api.WithLogger(c.log.Named("api")),
	).Register(mux)
	swagger.Register(mux)

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		c.log.Info(ctx, "starting HTTP server", logger.String("addr", c.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
	}
	c.log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	c.log.Info(ctx, "server stopped")
	return nil
}

// reloadOnHangup swaps in the model on disk each time the process receives SIGHUP.
func (c *cli) reloadOnHangup(ctx context.Context, svc *service.Service) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := svc.Reload(ctx); err != nil {
				c.log.Error(ctx, "model reload failed", logger.Error(err))
				continue
			}
			c.log.Info(ctx, "model reloaded", logger.String("model_id", svc.ModelID()))
		}
	}
}

// startServiceMetricsUpdater refreshes queue, store and worker gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateServiceMetrics publishes gauges that GetStats does not refresh itself.
func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	stats := svc.GetStats(ctx)
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
	if capacity, ok := stats["queueCapacity"].(int); ok {
		metrics.UpdateQueueCapacity(capacity)
	}
}
