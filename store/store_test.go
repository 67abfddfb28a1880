package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/domain"
	"taskboard/storage"
)

// recordingKV wraps an in-memory KV, counting writes and optionally failing
// them per key.
type recordingKV struct {
	*storage.Memory
	mu      sync.Mutex
	sets    map[string]int
	failSet func(key string) error
}

func newRecordingKV() *recordingKV {
	return &recordingKV{Memory: storage.NewMemory(), sets: map[string]int{}}
}

func (r *recordingKV) Set(ctx context.Context, key string, data []byte) error {
	r.mu.Lock()
	fail := r.failSet
	r.mu.Unlock()
	if fail != nil {
		if err := fail(key); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.sets[key]++
	r.mu.Unlock()
	return r.Memory.Set(ctx, key, data)
}

func (r *recordingKV) writes(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets[key]
}

func (r *recordingKV) raw(t *testing.T, key string) string {
	t.Helper()
	data, _, err := r.Memory.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("raw get %s: %v", key, err)
	}
	return string(data)
}

func quietLogger() *log.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func newTestTaskStore(kv storage.KV) (*TaskStore, *FilterState) {
	fs := NewFilterState()
	s := NewTaskStore(kv, fs, quietLogger())
	clock := &fixedClock{now: time.UnixMilli(1_700_000_000_000)}
	s.now = clock.Now
	s.ids.now = clock.Now
	return s, fs
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.notes...)
}

func TestIDGeneratorMonotonicWithStalledClock(t *testing.T) {
	g := NewIDGenerator()
	fixed := time.UnixMilli(1000)
	g.now = func() time.Time { return fixed }

	seen := map[int64]bool{}
	prev := int64(0)
	for i := 0; i < 100; i++ {
		id := g.Next()
		if id <= prev || seen[id] {
			t.Fatalf("id %d not unique and increasing after %d", id, prev)
		}
		seen[id] = true
		prev = id
	}
	if first := prev - 99; first != 1000 {
		t.Fatalf("expected ids to start at clock value, first=%d", first)
	}
}

func TestIDGeneratorObserve(t *testing.T) {
	g := NewIDGenerator()
	g.now = func() time.Time { return time.UnixMilli(10) }
	g.Observe(500)
	if id := g.Next(); id != 501 {
		t.Fatalf("expected 501, got %d", id)
	}
	g.Observe(100)
	if id := g.Next(); id != 502 {
		t.Fatalf("observe must never lower the floor, got %d", id)
	}
}

func TestIDGeneratorConcurrent(t *testing.T) {
	g := NewIDGenerator()
	const workers, perWorker = 8, 200
	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- g.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)
	seen := map[int64]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestFilterState(t *testing.T) {
	fs := NewFilterState()
	if fs.Current() != domain.DefaultFilter() {
		t.Fatalf("unexpected initial filter: %+v", fs.Current())
	}

	var got []domain.Filter
	cancel := fs.Subscribe(func(f domain.Filter) { got = append(got, f) })

	search := "milk"
	if err := fs.SetFilter(domain.FilterPatch{Search: &search}); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	cur := fs.Current()
	if cur.Search != "milk" || cur.Sort != domain.SortDueDate || cur.Category != domain.CategoryAll {
		t.Fatalf("expected shallow merge, got %+v", cur)
	}

	bad := "sideways"
	if err := fs.SetFilter(domain.FilterPatch{Order: &bad}); !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	if fs.Current() != cur {
		t.Fatalf("invalid patch must not change the filter")
	}

	fs.Reset()
	if fs.Current() != domain.DefaultFilter() {
		t.Fatalf("reset did not restore defaults: %+v", fs.Current())
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}

	cancel()
	fs.Reset()
	if len(got) != 2 {
		t.Fatalf("cancelled subscriber still notified")
	}
}
