package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/slarisk/internal/domain/features"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // test epoch

func backends(t *testing.T, opts ...Option) map[string]FeatureStore {
	t.Helper()
	ctx := context.Background()
	out := make(map[string]FeatureStore)
	for _, b := range []string{BackendMemory, BackendBadger} {
		s, err := New(ctx, b, opts...)
		if err != nil {
			t.Fatalf("open %s: %v", b, err)
		}
		t.Cleanup(func() { _ = s.Close() })
		out[b] = s
	}
	return out
}

func TestFeatureStore_MergeAndGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "t1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			_, err := s.Update(ctx, Mutation{TaskID: "t1", EventTime: t0, Fields: features.Vector{
				"weather": features.Cat("Rain"), "traffic": features.Num(0.2),
			}})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := s.Update(ctx, Mutation{TaskID: "t1", EventTime: t0.Add(time.Minute), Fields: features.Vector{
				"traffic": features.Num(0.9),
			}})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got["traffic"].Num != 0.9 || got["weather"].Cat != "Rain" {
				t.Errorf("unexpected merged vector: %+v", got)
			}

			read, err := s.Get(ctx, "t1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(read) != 2 {
				t.Errorf("expected 2 fields, got %d", len(read))
			}
			if n := s.Len(ctx); n != 1 {
				t.Errorf("expected count 1, got %d", n)
			}
		})
	}
}

func TestFeatureStore_EventTimeOrdering(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			mustUpdate(t, s, Mutation{TaskID: "t1", EventTime: t0.Add(5 * time.Minute), Fields: features.Vector{"x": features.Num(2)}})
			got := mustUpdate(t, s, Mutation{TaskID: "t1", EventTime: t0, Fields: features.Vector{
				"x": features.Num(1), "y": features.Num(7),
			}})
			if got["x"].Num != 2 {
				t.Errorf("older write overwrote newer value: %v", got["x"].Num)
			}
			if got["y"].Num != 7 {
				t.Errorf("new field from older event should be applied, got %v", got["y"])
			}

			got = mustUpdate(t, s, Mutation{TaskID: "t1", EventTime: t0.Add(5 * time.Minute), Fields: features.Vector{"x": features.Num(3)}})
			if got["x"].Num != 3 {
				t.Errorf("equal event time should go to the later arrival, got %v", got["x"].Num)
			}
		})
	}
}

func TestFeatureStore_ArrivalOrdering(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t, WithOrdering(OrderingArrival)) {
		t.Run(name, func(t *testing.T) {
			mustUpdate(t, s, Mutation{TaskID: "t1", EventTime: t0.Add(time.Hour), Fields: features.Vector{"x": features.Num(2)}})
			got := mustUpdate(t, s, Mutation{TaskID: "t1", EventTime: t0, Fields: features.Vector{"x": features.Num(1)}})
			if got["x"].Num != 1 {
				t.Errorf("arrival ordering should keep the last write, got %v", got["x"].Num)
			}
			if _, err := s.Update(ctx, Mutation{TaskID: "t2", Fields: features.Vector{"x": features.Num(1)}}); err != nil {
				t.Errorf("zero event time is allowed under arrival ordering: %v", err)
			}
		})
	}
}

func TestFeatureStore_Evict(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			mustUpdate(t, s, Mutation{TaskID: "t1", EventTime: t0, Fields: features.Vector{"x": features.Num(1)}})
			if err := s.Evict(ctx, "t1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, err := s.Get(ctx, "t1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after evict, got %v", err)
			}
			if err := s.Evict(ctx, "never-seen"); err != nil {
				t.Errorf("evicting an unknown task should succeed, got %v", err)
			}
			if n := s.Len(ctx); n != 0 {
				t.Errorf("expected count 0, got %d", n)
			}
		})
	}
}

func TestFeatureStore_InvalidMutation(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Update(ctx, Mutation{EventTime: t0}); !errors.Is(err, ErrInvalidMutation) {
				t.Errorf("expected ErrInvalidMutation for empty id, got %v", err)
			}
			if _, err := s.Update(ctx, Mutation{TaskID: "t1"}); !errors.Is(err, ErrInvalidMutation) {
				t.Errorf("expected ErrInvalidMutation for zero event time, got %v", err)
			}
		})
	}
}

func hammer(t *testing.T, s FeatureStore, writers, updates int) {
	t.Helper()
	ctx := context.Background()
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			field := fmt.Sprintf("f%d", w)
			for i := 0; i < updates; i++ {
				m := Mutation{TaskID: "hot", EventTime: t0.Add(time.Duration(i) * time.Second),
					Fields: features.Vector{field: features.Num(float64(i))}}
				if _, err := s.Update(ctx, m); err != nil {
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	if n := failed.Load(); n != 0 {
		t.Fatalf("failed updates: %d of %d", n, writers*updates)
	}

	v, err := s.Get(ctx, "hot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != writers {
		t.Fatalf("expected %d fields, got %d", writers, len(v))
	}
	for k, val := range v {
		if val.Num != float64(updates-1) {
			t.Errorf("field %s: expected last value %d, got %v", k, updates-1, val.Num)
		}
	}
}

func TestFeatureStore_ConcurrentUpdates(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			hammer(t, s, 16, 50)
		})
	}
}

func TestBadgerStore_SameTaskWritersDoNotConflict(t *testing.T) {
	s, err := NewBadgerStore(context.Background(), WithMaxRetries(1), WithShards(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	hammer(t, s, 16, 50)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	now := t0
	clock := func() time.Time { return now }
	s, err := NewMemoryStore(ctx, WithTTL(time.Hour), WithClock(clock), WithShards(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	mustUpdate(t, s, Mutation{TaskID: "old", EventTime: t0, Fields: features.Vector{"x": features.Num(1)}})
	now = t0.Add(50 * time.Minute)
	mustUpdate(t, s, Mutation{TaskID: "fresh", EventTime: now, Fields: features.Vector{"x": features.Num(1)}})
	now = t0.Add(90 * time.Minute)

	removed := s.Sweep(ctx)
	if len(removed) != 1 || removed[0] != "old" {
		t.Fatalf("expected only old to expire, got %v", removed)
	}
	if _, err := s.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh task should survive: %v", err)
	}
	if s.Len(ctx) != 1 {
		t.Errorf("expected count 1, got %d", s.Len(ctx))
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	s, _ := NewMemoryStore(ctx)
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if _, err := s.Update(ctx, Mutation{TaskID: "t1", EventTime: t0}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), "redis"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func mustUpdate(t *testing.T, s FeatureStore, m Mutation) features.Vector {
	t.Helper()
	v, err := s.Update(context.Background(), m)
	if err != nil {
		t.Fatalf("update %s: %v", m.TaskID, err)
	}
	return v
}
