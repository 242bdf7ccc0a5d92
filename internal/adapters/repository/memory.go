package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/pkg/logger"
	"github.com/okian/slarisk/pkg/metrics"
)

// MemoryStore is a sharded in-memory FeatureStore. A shard lock guards the
// task map only; field merges take the per-task lock.
type MemoryStore struct {
	opts   options
	shards []*shard
	count  atomic.Int64
	closed atomic.Bool

	wg       sync.WaitGroup
	stopChan chan struct{}
}

type shard struct {
	mu    sync.RWMutex
	tasks map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	fields  map[string]stamped
	touched time.Time
	gone    bool
}

// NewMemoryStore constructs a memory store and starts its sweeper.
func NewMemoryStore(ctx context.Context, opts ...Option) (*MemoryStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &MemoryStore{
		opts:     o,
		shards:   make([]*shard, o.shards),
		stopChan: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{tasks: make(map[string]*entry)}
	}
	s.startSweeper(ctx)
	return s, nil
}

func (s *MemoryStore) shardFor(taskID string) *shard {
	return s.shards[xxhash.Sum64String(taskID)%uint64(len(s.shards))]
}

// Update implements FeatureStore.Update.
func (s *MemoryStore) Update(ctx context.Context, m Mutation) (features.Vector, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("update", float64(time.Since(start).Microseconds())/1000)
	}()
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := validate(m, s.opts.ordering); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sh := s.shardFor(m.TaskID)
	for {
		e := s.getOrCreate(sh, m.TaskID)
		e.mu.Lock()
		if e.gone {
			// Evicted between lookup and lock; retry against the live map.
			e.mu.Unlock()
			continue
		}
		applied, stale := merge(e.fields, m, s.opts.ordering)
		e.touched = s.opts.now()
		out := vectorOf(e.fields)
		e.mu.Unlock()

		metrics.RecordStoreUpdate(BackendMemory)
		metrics.RecordStaleFields(stale)
		if stale > 0 {
			s.opts.log.Debug(ctx, "stale feature fields ignored",
				logger.String("task_id", m.TaskID),
				logger.Int("stale", stale),
				logger.Int("applied", applied))
		}
		return out, nil
	}
}

func (s *MemoryStore) getOrCreate(sh *shard, taskID string) *entry {
	sh.mu.RLock()
	e, ok := sh.tasks[taskID]
	sh.mu.RUnlock()
	if ok {
		return e
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok = sh.tasks[taskID]; ok {
		return e
	}
	e = &entry{fields: make(map[string]stamped)}
	sh.tasks[taskID] = e
	s.count.Add(1)
	return e
}

// Get implements FeatureStore.Get.
func (s *MemoryStore) Get(_ context.Context, taskID string) (features.Vector, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("get", float64(time.Since(start).Microseconds())/1000)
	}()
	sh := s.shardFor(taskID)
	sh.mu.RLock()
	e, ok := sh.tasks[taskID]
	sh.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return nil, ErrNotFound
	}
	return vectorOf(e.fields), nil
}

// Evict implements FeatureStore.Evict.
func (s *MemoryStore) Evict(_ context.Context, taskID string) error {
	if s.remove(taskID, nil) {
		metrics.RecordStoreEviction("explicit")
	}
	return nil
}

// remove deletes taskID when keep is nil or returns false for the entry.
func (s *MemoryStore) remove(taskID string, keep func(*entry) bool) bool {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.tasks[taskID]
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if keep != nil && keep(e) {
		return false
	}
	e.gone = true
	delete(sh.tasks, taskID)
	s.count.Add(-1)
	return true
}

// Len implements FeatureStore.Len.
func (s *MemoryStore) Len(_ context.Context) int {
	return int(s.count.Load())
}

// Sweep drops tasks idle for longer than the TTL and returns their ids.
func (s *MemoryStore) Sweep(ctx context.Context) []string {
	if s.opts.ttl <= 0 {
		return nil
	}
	cutoff := s.opts.now().Add(-s.opts.ttl)
	var expired []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, e := range sh.tasks {
			e.mu.Lock()
			if e.touched.Before(cutoff) {
				expired = append(expired, id)
			}
			e.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	removed := expired[:0]
	for _, id := range expired {
		// An update may have refreshed the task since the scan.
		if s.remove(id, func(e *entry) bool { return !e.touched.Before(cutoff) }) {
			removed = append(removed, id)
			metrics.RecordStoreEviction("ttl")
		}
	}
	if len(removed) > 0 {
		s.opts.log.Info(ctx, "expired idle tasks from feature store", logger.Int("count", len(removed)))
	}
	return removed
}

func (s *MemoryStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep(ctx)
				metrics.UpdateStoreEntries(s.Len(ctx))
			}
		}
	}()
}

// Close stops the sweeper. Reads keep working; updates fail with ErrClosed.
func (s *MemoryStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}
