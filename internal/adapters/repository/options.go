package repository

import (
	"time"

	"github.com/okian/slarisk/pkg/logger"
)

type options struct {
	ordering      Ordering
	ttl           time.Duration
	shards        int
	sweepInterval time.Duration
	now           func() time.Time
	log           logger.Logger
	maxRetries    int
}

func defaultOptions() options {
	return options{
		ordering:      OrderingEventTime,
		shards:        16,
		sweepInterval: time.Minute,
		now:           time.Now,
		log:           logger.NewNop(),
		maxRetries:    8,
	}
}

// Option applies a configuration option to a feature store.
type Option func(*options)

// WithOrdering sets the conflict policy for writes to the same field.
func WithOrdering(o Ordering) Option {
	return func(s *options) {
		if o == OrderingEventTime || o == OrderingArrival {
			s.ordering = o
		}
	}
}

// WithTTL drops tasks that were not updated for ttl. Zero keeps tasks until evicted.
func WithTTL(ttl time.Duration) Option {
	return func(s *options) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithShards sets the number of memory-store shards and badger lock stripes.
func WithShards(n int) Option {
	return func(s *options) {
		if n > 0 {
			s.shards = n
		}
	}
}

// WithSweepInterval sets how often expired tasks are swept and gauges refreshed.
func WithSweepInterval(d time.Duration) Option {
	return func(s *options) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithClock replaces the wall clock used for TTL bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *options) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *options) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxRetries bounds transaction retries on write conflicts (badger backend).
func WithMaxRetries(n int) Option {
	return func(s *options) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}
