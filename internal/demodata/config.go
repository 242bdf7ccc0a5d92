// Package demodata generates synthetic last-mile delivery data in the shape
// of the LaDe dataset and replays live events against a running service.
package demodata

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/slarisk/internal/domain/model"
)

// ErrInvalidConfig is returned for unusable generator settings.
var ErrInvalidConfig = errors.New("invalid demo data config")

// Config holds generator settings. Equal configs generate identical data.
type Config struct {
	HistoryTasks       int       // tasks with full milestones, written to the tasks table
	StreamTasks        int       // tasks emitted as a live event stream after the history window
	Couriers           int       // courier pool shared by history and stream
	TrajectoryCouriers int       // couriers that only report GPS pings
	Days               int       // length of the history window
	Start              time.Time // first day of the history window, UTC
	PromiseMinutes     float64   // promised delivery allowance after creation
	MissingPromiseRate float64   // share of history tasks without a promise time
	Seed               uint64
}

// DefaultConfig returns a week of history for a mid-sized city fleet.
func DefaultConfig() Config {
	return Config{
		HistoryTasks:       2_000,
		StreamTasks:        200,
		Couriers:           150,
		TrajectoryCouriers: 40,
		Days:               7,
		Start:              time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		PromiseMinutes:     45,
		MissingPromiseRate: 0.05,
		Seed:               42,
	}
}

func (c Config) validate() error {
	switch {
	case c.HistoryTasks < 0 || c.StreamTasks < 0 || c.TrajectoryCouriers < 0:
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidConfig)
	case c.HistoryTasks+c.StreamTasks > 0 && c.Couriers < 1:
		return fmt.Errorf("%w: at least one courier is required", ErrInvalidConfig)
	case c.Days < 1:
		return fmt.Errorf("%w: days must be positive", ErrInvalidConfig)
	case c.PromiseMinutes <= 0:
		return fmt.Errorf("%w: promise minutes must be positive", ErrInvalidConfig)
	case c.MissingPromiseRate < 0 || c.MissingPromiseRate > 1:
		return fmt.Errorf("%w: missing promise rate must be in [0,1]", ErrInvalidConfig)
	case c.Start.IsZero():
		return fmt.Errorf("%w: start is required", ErrInvalidConfig)
	}
	return nil
}

// Dataset is one generated run.
type Dataset struct {
	Tasks        []model.TaskRecord
	Stream       []model.Event // ordered by timestamp
	Trajectories []model.TrajectoryPoint
}
