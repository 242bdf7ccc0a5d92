// Package labels derives SLA breach labels from task timestamps.
package labels

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/slarisk/internal/domain/model"
)

// Label values.
const (
	OnTime = 0
	Breach = 1
)

// DefaultTiers returns the stock service tiers in minutes.
func DefaultTiers() map[string]float64 {
	return map[string]float64{
		"instant":  60,
		"same_day": 480,
		"next_day": 1440,
	}
}

// Minutes returns the duration from start to end in minutes.
// An end before start is a data-quality error.
func Minutes(start, end time.Time) (float64, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("%w: start %s end %s", ErrEndBeforeStart,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return end.Sub(start).Minutes(), nil
}

// Label returns Breach when the task took strictly longer than thresholdMinutes.
func Label(start, end time.Time, thresholdMinutes float64) (int, error) {
	if math.IsNaN(thresholdMinutes) || thresholdMinutes < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidThreshold, thresholdMinutes)
	}
	d, err := Minutes(start, end)
	if err != nil {
		return 0, err
	}
	if d > thresholdMinutes {
		return Breach, nil
	}
	return OnTime, nil
}

// Generator labels task records against configurable service tiers.
type Generator struct {
	tiers       map[string]float64
	defaultTier string
}

// NewGenerator validates tiers and returns a Generator using defaultTier when no tier is requested.
func NewGenerator(tiers map[string]float64, defaultTier string) (*Generator, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: no tiers", ErrUnknownTier)
	}
	own := make(map[string]float64, len(tiers))
	for name, m := range tiers {
		if math.IsNaN(m) || m <= 0 {
			return nil, fmt.Errorf("%w: tier %q has %v minutes", ErrInvalidThreshold, name, m)
		}
		own[name] = m
	}
	if _, ok := own[defaultTier]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownTier, defaultTier)
	}
	return &Generator{tiers: own, defaultTier: defaultTier}, nil
}

// Tiers returns the configured tier names, sorted.
func (g *Generator) Tiers() []string {
	names := make([]string, 0, len(g.tiers))
	for n := range g.tiers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Threshold returns the allowance of tier in minutes. An empty tier selects the default.
func (g *Generator) Threshold(tier string) (float64, error) {
	if tier == "" {
		tier = g.defaultTier
	}
	m, ok := g.tiers[tier]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return m, nil
}

// ForTask labels a finalized record. The start is the assigned time, else the created time.
// A promise time on the record takes precedence over the tier allowance.
func (g *Generator) ForTask(r model.TaskRecord, tier string) (int, error) {
	start, ok := r.Start()
	if !ok || r.Delivered == nil {
		return 0, fmt.Errorf("%w: task %s", ErrIncomplete, r.TaskID)
	}
	if r.Promise != nil {
		allowance, err := Minutes(start, *r.Promise)
		if err != nil {
			return 0, fmt.Errorf("task %s promise: %w", r.TaskID, err)
		}
		return Label(start, *r.Delivered, allowance)
	}
	threshold, err := g.Threshold(tier)
	if err != nil {
		return 0, err
	}
	l, err := Label(start, *r.Delivered, threshold)
	if err != nil {
		return 0, fmt.Errorf("task %s: %w", r.TaskID, err)
	}
	return l, nil
}
