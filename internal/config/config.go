// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validate enforces field constraints and cross-field ordering.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
)

// Store backends and ordering policies.
const (
	StoreBackendMemory = "memory"
	StoreBackendBadger = "badger"

	OrderingEventTime = "event_time"
	OrderingArrival   = "arrival"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// EventQueueSize bounds the in-memory event queue.
	EventQueueSize int `koanf:"queue_size" validate:"gt=0"`

	// WorkerCount sets the number of event workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`

	// DedupeSize sets the number of event ids remembered for deduplication.
	DedupeSize int `koanf:"dedupe_size" validate:"gt=0"`

	// Model persistence paths.
	ModelPath      string `koanf:"model_path" validate:"required"`
	ManifestPath   string `koanf:"manifest_path" validate:"required"`
	ValidationPath string `koanf:"validation_path" validate:"required"`

	// SLATiers maps a service tier to its allowed duration in minutes.
	SLATiers    map[string]float64 `koanf:"sla_tiers" validate:"required,min=1,dive,gt=0"`
	DefaultTier string             `koanf:"default_tier" validate:"required"`

	// Risk band cutoffs.
	ThresholdMedium float64 `koanf:"threshold_medium" validate:"gte=0,lte=1"`
	ThresholdHigh   float64 `koanf:"threshold_high" validate:"gte=0,lte=1"`

	// Unit costs of a missed breach and of an unnecessary intervention.
	CostFN float64 `koanf:"cost_fn" validate:"gte=0"`
	CostFP float64 `koanf:"cost_fp" validate:"gte=0"`

	BaselineThreshold float64 `koanf:"baseline_threshold" validate:"gt=0,lt=1"`
	CurvePoints       int     `koanf:"curve_points" validate:"gt=0,lte=1000"`

	// Online feature store.
	StoreBackend  string        `koanf:"store_backend" validate:"oneof=memory badger"`
	StoreOrdering string        `koanf:"store_ordering" validate:"oneof=event_time arrival"`
	StoreTTL      time.Duration `koanf:"store_ttl" validate:"gt=0"`
	StoreShards   int           `koanf:"store_shards" validate:"gt=0"`

	// TrackerMaxOpen caps the number of open (not yet delivered) tasks kept by the online aggregator.
	TrackerMaxOpen int `koanf:"tracker_max_open" validate:"gt=0"`

	// Trajectory fallback promise: base allowance plus pace per kilometre.
	TrajectoryBaseMinutes      float64 `koanf:"trajectory_base_minutes" validate:"gte=0"`
	TrajectoryPaceMinutesPerKM float64 `koanf:"trajectory_pace_minutes_per_km" validate:"gte=0"`

	// TrainFraction is the share of the earliest rows used for training.
	TrainFraction float64 `koanf:"train_fraction" validate:"gt=0,lt=1"`

	// RateLimitRPS limits ingest and scoring requests; zero disables limiting.
	RateLimitRPS float64 `koanf:"rate_limit_rps" validate:"gte=0"`

	// RecentDecisions bounds the in-memory buffer served by GET /decisions.
	RecentDecisions int `koanf:"recent_decisions" validate:"gt=0"`
}

var validate = validator.New() //nolint:gochecknoglobals // validator caches struct metadata

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Addr:           ":9080",
		EventQueueSize: 100_000,
		WorkerCount:    runtime.NumCPU() * 4,
		DedupeSize:     500_000,
		ModelPath:      "models/model.json",
		ManifestPath:   "models/manifest.json",
		ValidationPath: "models/validation_predictions.csv",
		SLATiers: map[string]float64{
			"instant":  60,
			"same_day": 480,
			"next_day": 1440,
		},
		DefaultTier:                "instant",
		ThresholdMedium:            0.40,
		ThresholdHigh:              0.70,
		CostFN:                     100,
		CostFP:                     10,
		BaselineThreshold:          0.5,
		CurvePoints:                20,
		StoreBackend:               StoreBackendMemory,
		StoreOrdering:              OrderingEventTime,
		StoreTTL:                   6 * time.Hour,
		StoreShards:                16,
		TrackerMaxOpen:             200_000,
		TrajectoryBaseMinutes:      30,
		TrajectoryPaceMinutesPerKM: 5,
		TrainFraction:              0.8,
		RateLimitRPS:               0,
		RecentDecisions:            1_000,
	}
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.ThresholdMedium > c.ThresholdHigh {
		return fmt.Errorf("%w: threshold_medium %.4f exceeds threshold_high %.4f",
			ErrInvalidConfig, c.ThresholdMedium, c.ThresholdHigh)
	}
	if _, ok := c.SLATiers[c.DefaultTier]; !ok {
		return fmt.Errorf("%w: default_tier %q is not a configured sla tier", ErrInvalidConfig, c.DefaultTier)
	}
	return nil
}

// DefaultTierMinutes returns the SLA allowance of the default tier.
func (c *Config) DefaultTierMinutes() float64 {
	return c.SLATiers[c.DefaultTier]
}
