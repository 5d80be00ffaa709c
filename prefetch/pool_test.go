package prefetch

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mwcore/wikirender/store"
)

func testLogger() *slog.Logger { return slog.Default() }

// slowSource records the order work arrives and can hold workers until
// released.
type slowSource struct {
	mu      sync.Mutex
	scans   [][]string
	decodes []string
	mem     *store.MemStore
}

func newSlowSource() *slowSource {
	return &slowSource{mem: store.NewMemStore()}
}

func (s *slowSource) ScanExists(ctx context.Context, titles []string) (map[string]bool, error) {
	s.mu.Lock()
	cp := append([]string(nil), titles...)
	s.scans = append(s.scans, cp)
	s.mu.Unlock()
	out := make(map[string]bool, len(titles))
	for _, t := range titles {
		out[t] = s.mem.Contains(ctx, t)
	}
	return out, nil
}

func (s *slowSource) Decode(ctx context.Context, title string) (*store.Article, error) {
	s.mu.Lock()
	s.decodes = append(s.decodes, title)
	s.mu.Unlock()
	return s.mem.Get(ctx, title)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestPrefetchDecodesIntoCache(t *testing.T) {
	src := newSlowSource()
	src.mem.Put(&store.Article{Title: "T", Body: "body"})
	cached := store.NewCachedStore(store.NewMemStore(), 8)
	p := New(src, cached, 1)
	defer p.Close()

	p.Prefetch("T", PriorityHigh)

	waitFor(t, func() bool {
		_, err := cached.Get(context.Background(), "T")
		return err == nil
	})
}

func TestExistenceOnlyDoesNotDecode(t *testing.T) {
	src := newSlowSource()
	src.mem.Put(&store.Article{Title: "T", Body: "body"})
	cached := store.NewCachedStore(store.NewMemStore(), 8)
	p := New(src, cached, 1)
	defer p.Close()

	p.Prefetch("T", PriorityLow)

	waitFor(t, func() bool {
		_, done := p.Exists("T")
		return done
	})
	src.mu.Lock()
	decodes := len(src.decodes)
	src.mu.Unlock()
	if decodes != 0 {
		t.Errorf("existence-only hint decoded %d articles", decodes)
	}
	if exists, _ := p.Exists("T"); !exists {
		t.Error("existence answer wrong")
	}
}

// An existence batch picks up every pending existence-only title so a
// single index scan serves both.
func TestBatchMergesExistenceChecks(t *testing.T) {
	src := newSlowSource()
	for _, n := range []string{"A", "B", "C"} {
		src.mem.Put(&store.Article{Title: n, Body: "x"})
	}
	cached := store.NewCachedStore(store.NewMemStore(), 8)

	// No workers yet: queue everything first, then start the pool.
	p := &Pool{
		src:     src,
		cache:   cached,
		log:     testLogger(),
		entries: map[string]*entry{},
		exists:  map[string]bool{},
	}
	p.cond = sync.NewCond(&p.mu)
	p.Prefetch("A", PriorityLow)
	p.Prefetch("B", PriorityLow)
	p.Prefetch("C", PriorityHigh)

	p.wg.Add(1)
	go p.worker()
	defer p.Close()

	waitFor(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.scans) > 0
	})
	src.mu.Lock()
	first := src.scans[0]
	src.mu.Unlock()
	if len(first) != 3 {
		t.Errorf("first scan = %v, want all three titles merged", first)
	}
}

func TestCancelPending(t *testing.T) {
	src := newSlowSource()
	cached := store.NewCachedStore(store.NewMemStore(), 8)
	p := &Pool{
		src:     src,
		cache:   cached,
		log:     testLogger(),
		entries: map[string]*entry{},
		exists:  map[string]bool{},
	}
	p.cond = sync.NewCond(&p.mu)

	p.Prefetch("T", PriorityHigh)
	if !p.Cancel("T") {
		t.Fatal("cancel of a pending title should succeed")
	}
	if p.Cancel("Missing") {
		t.Fatal("cancel of an unknown title should report false")
	}
	p.mu.Lock()
	if p.pendingEC != 0 {
		t.Errorf("pending count = %d after cancel", p.pendingEC)
	}
	p.mu.Unlock()
}

func TestCloseStopsWorkers(t *testing.T) {
	src := newSlowSource()
	cached := store.NewCachedStore(store.NewMemStore(), 8)
	p := New(src, cached, 2)

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestStoreGetCancelsPool(t *testing.T) {
	src := newSlowSource()
	src.mem.Put(&store.Article{Title: "T", Body: "x"})
	cached := store.NewCachedStore(src.mem, 8)
	p := &Pool{
		src:     src,
		cache:   cached,
		log:     testLogger(),
		entries: map[string]*entry{},
		exists:  map[string]bool{},
	}
	p.cond = sync.NewCond(&p.mu)
	st := NewStore(cached, p)

	p.Prefetch("T", PriorityHigh)
	if _, err := st.Get(context.Background(), "T"); err != nil {
		t.Fatal(err)
	}
	p.mu.Lock()
	e := p.entries["T"]
	p.mu.Unlock()
	if e == nil || e.state != stateIgnored {
		t.Errorf("entry after overtaking get = %+v", e)
	}
}
