package aggregate

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/slarisk/internal/domain/dedupe"
	"github.com/okian/slarisk/internal/domain/model"
)

// Eviction reasons passed to the eviction callback.
const (
	EvictIdle     = "idle"
	EvictCapacity = "capacity"
)

const (
	defaultTrackerTTL     = 6 * time.Hour
	defaultTrackerMaxOpen = 200_000
	defaultFinalizedMemo  = 100_000
)

// Update is the outcome of applying one event to the tracker.
type Update struct {
	Record    model.TaskRecord // snapshot after the event
	Applied   bool             // false when the milestone was already recorded
	Finalized bool             // true when the event delivered the task
}

// Tracker is the online aggregator. It keeps open tasks until their delivered
// event arrives. Memory is bounded by an idle TTL and by a cap on open tasks;
// when the cap is hit the least recently touched task is evicted.
type Tracker struct {
	mu        sync.Mutex
	open      map[string]*list.Element
	lru       *list.List // front is least recently touched
	finalized dedupe.Deduper

	ttl     time.Duration
	maxOpen int
	now     func() time.Time
	onEvict func(taskID, reason string)
}

type openTask struct {
	rec     model.TaskRecord
	touched time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTTL sets the idle lifetime of an open task.
func WithTTL(ttl time.Duration) TrackerOption {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithMaxOpen caps the number of open tasks.
func WithMaxOpen(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.maxOpen = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithEvictCallback is called, outside the tracker lock, for every evicted open task.
func WithEvictCallback(fn func(taskID, reason string)) TrackerOption {
	return func(t *Tracker) {
		t.onEvict = fn
	}
}

// WithFinalizedMemory sets how many finalized task ids are remembered to reject late events.
func WithFinalizedMemory(n int) TrackerOption {
	return func(t *Tracker) {
		t.finalized = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(n))
	}
}

// NewTracker creates an online aggregator.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		open:    make(map[string]*list.Element),
		lru:     list.New(),
		ttl:     defaultTrackerTTL,
		maxOpen: defaultTrackerMaxOpen,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.finalized == nil {
		t.finalized = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(defaultFinalizedMemo))
	}
	return t
}

// Apply folds ev into the open record of its task.
func (t *Tracker) Apply(ctx context.Context, ev model.Event) (Update, error) {
	if ev.TaskID == "" {
		return Update{}, ErrMissingTaskID
	}
	if !ev.Type.Valid() {
		return Update{}, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
	if t.finalized.Seen(ctx, ev.TaskID) {
		return Update{}, fmt.Errorf("%w: %s", ErrTaskFinalized, ev.TaskID)
	}

	var evicted []string
	t.mu.Lock()
	el, ok := t.open[ev.TaskID]
	if !ok {
		evicted = t.makeRoomLocked()
		el = t.lru.PushBack(&openTask{rec: model.TaskRecord{TaskID: ev.TaskID}})
		t.open[ev.TaskID] = el
	}
	task := el.Value.(*openTask)

	candidate := task.rec.Clone()
	applied := Apply(&candidate, ev)
	if err := candidate.Validate(); err != nil {
		if !ok {
			t.lru.Remove(el)
			delete(t.open, ev.TaskID)
		}
		t.mu.Unlock()
		t.notify(evicted, EvictCapacity)
		return Update{}, err
	}
	task.rec = candidate
	task.touched = t.now()
	t.lru.MoveToBack(el)

	up := Update{Record: candidate.Clone(), Applied: applied, Finalized: candidate.Finalized()}
	if up.Finalized {
		t.lru.Remove(el)
		delete(t.open, ev.TaskID)
	}
	t.mu.Unlock()

	if up.Finalized {
		t.finalized.SeenAndRecord(ctx, ev.TaskID)
	}
	t.notify(evicted, EvictCapacity)
	return up, nil
}

// makeRoomLocked evicts least recently touched tasks until one more fits.
func (t *Tracker) makeRoomLocked() []string {
	var evicted []string
	for t.lru.Len() >= t.maxOpen {
		front := t.lru.Front()
		id := front.Value.(*openTask).rec.TaskID
		t.lru.Remove(front)
		delete(t.open, id)
		evicted = append(evicted, id)
	}
	return evicted
}

// Get returns a snapshot of an open task.
func (t *Tracker) Get(taskID string) (model.TaskRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	el, ok := t.open[taskID]
	if !ok {
		return model.TaskRecord{}, false
	}
	return el.Value.(*openTask).rec.Clone(), true
}

// Sweep evicts open tasks idle for longer than the TTL and returns their ids.
func (t *Tracker) Sweep(_ context.Context) []string {
	cutoff := t.now().Add(-t.ttl)
	var evicted []string
	t.mu.Lock()
	for el := t.lru.Front(); el != nil; {
		task := el.Value.(*openTask)
		if task.touched.After(cutoff) {
			break
		}
		next := el.Next()
		t.lru.Remove(el)
		delete(t.open, task.rec.TaskID)
		evicted = append(evicted, task.rec.TaskID)
		el = next
	}
	t.mu.Unlock()
	t.notify(evicted, EvictIdle)
	return evicted
}

// Run sweeps every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// IsFinalized reports whether a delivered event has closed taskID. The memory
// of closed tasks is bounded, so very old tasks may report false.
func (t *Tracker) IsFinalized(ctx context.Context, taskID string) bool {
	return t.finalized.Seen(ctx, taskID)
}

// Len returns the number of open tasks.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

func (t *Tracker) notify(ids []string, reason string) {
	if t.onEvict == nil {
		return
	}
	for _, id := range ids {
		t.onEvict(id, reason)
	}
}
