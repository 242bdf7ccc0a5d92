package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"

	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/pkg/logger"
	"github.com/okian/slarisk/pkg/metrics"
)

var taskPrefix = []byte("task/") //nolint:gochecknoglobals // key namespace

// BadgerStore is a FeatureStore on an in-memory badger database. Each task is
// one key holding its stamped fields; the TTL is enforced by badger entry expiry.
// Writers to the same task queue on a lock stripe picked by task id.
type BadgerStore struct {
	opts    options
	db      *badger.DB
	closed  atomic.Bool
	stripes []sync.Mutex

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// badgerLogger adapts logger.Logger to badger's logging interface.
type badgerLogger struct {
	log logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

// NewBadgerStore opens an in-memory badger database.
func NewBadgerStore(ctx context.Context, opts ...Option) (*BadgerStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	bo := badger.DefaultOptions("").
		WithInMemory(true).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{log: o.log.Named("badger")})
	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s := &BadgerStore{
		opts:     o,
		db:       db,
		stripes:  make([]sync.Mutex, o.shards),
		stopChan: make(chan struct{}),
	}
	s.startGauge(ctx)
	return s, nil
}

func taskKey(taskID string) []byte {
	k := make([]byte, 0, len(taskPrefix)+len(taskID))
	k = append(k, taskPrefix...)
	return append(k, taskID...)
}

func (s *BadgerStore) stripe(taskID string) *sync.Mutex {
	return &s.stripes[xxhash.Sum64String(taskID)%uint64(len(s.stripes))]
}

// Update implements FeatureStore.Update. Writers to the same task are
// serialised; transaction conflicts are still retried up to the configured limit.
func (s *BadgerStore) Update(ctx context.Context, m Mutation) (features.Vector, error) {
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

	mu := s.stripe(m.TaskID)
	mu.Lock()
	defer mu.Unlock()

	key := taskKey(m.TaskID)
	var (
		out   features.Vector
		stale int
		err   error
	)
	for attempt := 0; attempt < s.opts.maxRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			cur, err := readFields(txn, key)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if cur == nil {
				cur = make(map[string]stamped, len(m.Fields))
			}
			_, stale = merge(cur, m, s.opts.ordering)
			raw, err := json.Marshal(cur)
			if err != nil {
				return fmt.Errorf("encode task %s: %w", m.TaskID, err)
			}
			e := badger.NewEntry(key, raw)
			if s.opts.ttl > 0 {
				e = e.WithTTL(s.opts.ttl)
			}
			out = vectorOf(cur)
			return txn.SetEntry(e)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", m.TaskID, err)
	}
	metrics.RecordStoreUpdate(BackendBadger)
	metrics.RecordStaleFields(stale)
	return out, nil
}

func readFields(txn *badger.Txn, key []byte) (map[string]stamped, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cur map[string]stamped
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &cur)
	})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return cur, nil
}

// Get implements FeatureStore.Get.
func (s *BadgerStore) Get(_ context.Context, taskID string) (features.Vector, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("get", float64(time.Since(start).Microseconds())/1000)
	}()
	var out features.Vector
	err := s.db.View(func(txn *badger.Txn) error {
		cur, err := readFields(txn, taskKey(taskID))
		if err != nil {
			return err
		}
		out = vectorOf(cur)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Evict implements FeatureStore.Evict.
func (s *BadgerStore) Evict(_ context.Context, taskID string) error {
	mu := s.stripe(taskID)
	mu.Lock()
	defer mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(taskKey(taskID))
	})
	if err != nil {
		return fmt.Errorf("evict task %s: %w", taskID, err)
	}
	metrics.RecordStoreEviction("explicit")
	return nil
}

// Len implements FeatureStore.Len. Expired entries are not counted.
func (s *BadgerStore) Len(_ context.Context) int {
	n := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: taskPrefix})
		defer it.Close()
		for it.Seek(taskPrefix); it.ValidForPrefix(taskPrefix); it.Next() {
			n++
		}
		return nil
	})
	return n
}

func (s *BadgerStore) startGauge(ctx context.Context) {
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
				metrics.UpdateStoreEntries(s.Len(ctx))
			}
		}
	}()
}

// Close stops background work and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopChan)
	s.wg.Wait()
	return s.db.Close()
}
