package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/slarisk/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.StoreBackendMemory)
				convey.So(cfg.CurvePoints, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SLARISK_ADDR", ":8080")
			_ = os.Setenv("SLARISK_QUEUE_SIZE", "500")
			_ = os.Setenv("SLARISK_THRESHOLD_HIGH", "0.8")
			_ = os.Setenv("SLARISK_STORE_TTL", "90m")
			_ = os.Setenv("SLARISK_STORE_BACKEND", "badger")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.ThresholdHigh, convey.ShouldEqual, 0.8)
				convey.So(cfg.StoreTTL, convey.ShouldEqual, 90*time.Minute)
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.StoreBackendBadger)
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
worker_count: 24
cost_fn: 250
cost_fp: 15
default_tier: express
sla_tiers:
  express: 45
  standard: 300
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SLARISK_CONFIG", tmpFile)
			_ = os.Setenv("SLARISK_WORKER_COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env values win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.CostFN, convey.ShouldEqual, 250)
				convey.So(cfg.DefaultTierMinutes(), convey.ShouldEqual, 45)
			})

			convey.Convey("Then the file tiers replace the default tiers", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(cfg.SLATiers), convey.ShouldEqual, 2)
				_, hasInstant := cfg.SLATiers["instant"]
				convey.So(hasInstant, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("SLARISK_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it returns ErrLoadConfig", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When an env value cannot be parsed", func() {
			_ = os.Setenv("SLARISK_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.So(cfg, convey.ShouldBeNil)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When env values break validation", func() {
			_ = os.Setenv("SLARISK_THRESHOLD_MEDIUM", "0.9")
			_ = os.Setenv("SLARISK_THRESHOLD_HIGH", "0.3")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then loading fails with ErrInvalidConfig", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the address is emptied", func() {
			_ = os.Setenv("SLARISK_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"SLARISK_CONFIG",
		"SLARISK_ADDR",
		"SLARISK_QUEUE_SIZE",
		"SLARISK_WORKER_COUNT",
		"SLARISK_THRESHOLD_MEDIUM",
		"SLARISK_THRESHOLD_HIGH",
		"SLARISK_STORE_TTL",
		"SLARISK_STORE_BACKEND",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "slarisk-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
