// Package repository holds the online feature store: the latest feature
// vector of every in-flight task, keyed by task id.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/slarisk/internal/domain/features"
)

// Ordering decides which of two writes to the same field wins.
type Ordering string

const (
	// OrderingEventTime keeps the value with the latest event time per field.
	// Ties go to the later arrival.
	OrderingEventTime Ordering = "event_time"
	// OrderingArrival keeps the most recently applied value.
	OrderingArrival Ordering = "arrival"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Mutation is a partial update of a task's features observed at EventTime.
type Mutation struct {
	TaskID    string
	Fields    features.Vector
	EventTime time.Time
}

// FeatureStore provides per-task feature vectors to the scoring path.
// Updates to one task are serialised; different tasks never block each other.
type FeatureStore interface {
	// Update merges m into the task's vector, creating it when absent, and
	// returns the merged vector.
	Update(ctx context.Context, m Mutation) (features.Vector, error)

	// Get returns a copy of the task's vector or ErrNotFound.
	Get(ctx context.Context, taskID string) (features.Vector, error)

	// Evict drops a task. Evicting an unknown task is not an error.
	Evict(ctx context.Context, taskID string) error

	// Len returns the number of tasks held.
	Len(ctx context.Context) int

	// Close stops background work and releases resources.
	Close() error
}

// New builds the store named by backend.
func New(ctx context.Context, backend string, opts ...Option) (FeatureStore, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(ctx, opts...)
	case BackendBadger:
		return NewBadgerStore(ctx, opts...)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}

// stamped is a field value with the event time that produced it.
type stamped struct {
	Value features.Value `json:"v"`
	At    time.Time      `json:"at"`
}

func validate(m Mutation, ord Ordering) error {
	if m.TaskID == "" {
		return fmt.Errorf("%w: empty task id", ErrInvalidMutation)
	}
	if ord == OrderingEventTime && m.EventTime.IsZero() {
		return fmt.Errorf("%w: task %s: event time required", ErrInvalidMutation, m.TaskID)
	}
	return nil
}

// merge applies m to cur and reports how many fields were written and how many were stale.
func merge(cur map[string]stamped, m Mutation, ord Ordering) (applied, stale int) {
	for name, v := range m.Fields {
		old, ok := cur[name]
		if ok && ord == OrderingEventTime && m.EventTime.Before(old.At) {
			stale++
			continue
		}
		cur[name] = stamped{Value: v, At: m.EventTime}
		applied++
	}
	return applied, stale
}

func vectorOf(cur map[string]stamped) features.Vector {
	v := make(features.Vector, len(cur))
	for k, s := range cur {
		v[k] = s.Value
	}
	return v
}
