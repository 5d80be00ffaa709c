// Package prefetch implements the article prefetch pool: a fixed-size
// worker pool that batches existence checks and content decodes against
// the article store, driven by hints from the template expander. The
// renderer never depends on the pool for correctness; a lost race only
// duplicates work.
package prefetch

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/gammazero/deque"
	"golang.org/x/sync/errgroup"

	"github.com/mwcore/wikirender/store"
)

// Priority selects what a hint asks for: a high-priority hint wants the
// content decoded (a template about to be transcluded), a low-priority
// hint only wants the existence bit (a possible redlink).
type Priority int

const (
	PriorityLow  Priority = iota // existence only
	PriorityHigh                 // existence plus content
)

// jobState tracks one hinted title through the pool.
type jobState int

const (
	statePendingExistContent jobState = iota
	statePendingContent
	statePendingExist
	stateInFlightExistContent
	stateInFlightContent
	stateInFlightExist
	// stateIgnored parks a cancelled entry without removing it from the
	// order queue, so remaining entries keep their positions.
	stateIgnored
)

type entry struct {
	title string
	state jobState
}

// Source is the store-level surface the pool drives: a batched index
// scan and a single-article decode.
type Source interface {
	// ScanExists performs one index pass over titles, reporting which
	// exist.
	ScanExists(ctx context.Context, titles []string) (map[string]bool, error)
	// Decode loads and decodes one article.
	Decode(ctx context.Context, title string) (*store.Article, error)
}

// Pool is the prefetch worker pool. Workers and the render thread share
// only the entry table, the order queue, and the condition variable.
type Pool struct {
	src   Source
	cache *store.CachedStore
	log   *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	entries   map[string]*entry
	order     deque.Deque[string]
	pendingEC int // pending exist+content
	pendingC  int // pending content
	pendingE  int // pending exist-only
	exists    map[string]bool // completed existence answers
	terminate bool
	wg        sync.WaitGroup
}

// New starts a pool with the given worker count; zero or negative picks
// available parallelism minus one, floored at one.
func New(src Source, cache *store.CachedStore, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}
	p := &Pool{
		src:     src,
		cache:   cache,
		log:     slog.Default(),
		entries: make(map[string]*entry),
		exists:  make(map[string]bool),
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Close wakes every worker and waits for them to exit. In-flight work
// finishes; pending work is abandoned.
func (p *Pool) Close() {
	p.mu.Lock()
	p.terminate = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// Prefetch hints that title will be needed. It never fails observably.
func (p *Pool) Prefetch(title string, priority Priority) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminate {
		return
	}

	if e, ok := p.entries[title]; ok {
		// Upgrading an existence-only hint to a content hint keeps the
		// entry's queue position.
		if priority == PriorityHigh && e.state == statePendingExist {
			e.state = statePendingExistContent
			p.pendingE--
			p.pendingEC++
			p.cond.Broadcast()
		}
		return
	}
	if _, done := p.exists[title]; done && priority == PriorityLow {
		return
	}

	e := &entry{title: title}
	switch {
	case priority == PriorityHigh:
		if exists, done := p.exists[title]; done {
			// Existence already answered: only the decode remains.
			if !exists {
				return
			}
			e.state = statePendingContent
			p.pendingC++
		} else {
			e.state = statePendingExistContent
			p.pendingEC++
		}
	default:
		e.state = statePendingExist
		p.pendingE++
	}
	p.entries[title] = e
	p.order.PushBack(title)

	// Content work wakes everyone; an existence-only hint only needs
	// one worker since it will be batched anyway.
	if priority == PriorityHigh {
		p.cond.Broadcast()
	} else {
		p.cond.Signal()
	}
}

// Cancel tells the pool the renderer is fetching title itself. Pending
// entries are parked; an in-flight existence-plus-content check is
// narrowed to existence only. Reports whether the pool knew the title.
func (p *Pool) Cancel(title string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[title]
	if !ok {
		return false
	}
	switch e.state {
	case statePendingExistContent:
		p.pendingEC--
		e.state = stateIgnored
	case statePendingContent:
		p.pendingC--
		e.state = stateIgnored
	case statePendingExist:
		p.pendingE--
		e.state = stateIgnored
	case stateInFlightExistContent:
		e.state = stateInFlightExist
	default:
		return false
	}
	return true
}

// Exists answers a completed existence check, if one has finished.
func (p *Pool) Exists(title string) (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.exists[title]
	return v, ok
}

// job is one unit of work claimed by a worker.
type job struct {
	// existence batch, merged across exist-content and exist-only
	batch []*entry
	// single content decode
	content *entry
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for !p.terminate && p.pendingEC == 0 && p.pendingC == 0 && p.pendingE == 0 {
			p.cond.Wait()
		}
		if p.terminate {
			p.mu.Unlock()
			return
		}
		j := p.claim()
		p.mu.Unlock()

		switch {
		case len(j.batch) > 0:
			p.runBatch(j.batch)
		case j.content != nil:
			p.runContent(j.content)
		}
	}
}

// claim picks work in priority order: an exist-content batch (merged
// with every pending existence-only title so one index scan serves
// both), then a single content decode, then an existence-only batch.
func (p *Pool) claim() job {
	var j job
	switch {
	case p.pendingEC > 0:
		p.collect(&j, func(s jobState) (jobState, bool) {
			switch s {
			case statePendingExistContent:
				p.pendingEC--
				return stateInFlightExistContent, true
			case statePendingExist:
				p.pendingE--
				return stateInFlightExist, true
			}
			return s, false
		})
	case p.pendingC > 0:
		for i := 0; i < p.order.Len(); i++ {
			title := p.order.At(i)
			e := p.entries[title]
			if e != nil && e.state == statePendingContent {
				e.state = stateInFlightContent
				p.pendingC--
				j.content = e
				break
			}
		}
	case p.pendingE > 0:
		p.collect(&j, func(s jobState) (jobState, bool) {
			if s == statePendingExist {
				p.pendingE--
				return stateInFlightExist, true
			}
			return s, false
		})
	}
	return j
}

func (p *Pool) collect(j *job, transition func(jobState) (jobState, bool)) {
	for i := 0; i < p.order.Len(); i++ {
		title := p.order.At(i)
		e := p.entries[title]
		if e == nil {
			continue
		}
		if next, take := transition(e.state); take {
			e.state = next
			j.batch = append(j.batch, e)
		}
	}
}

// runBatch performs one index scan for the batch, then decodes content
// for the titles that both exist and still want it.
func (p *Pool) runBatch(batch []*entry) {
	titles := make([]string, len(batch))
	for i, e := range batch {
		titles[i] = e.title
	}
	found, err := p.src.ScanExists(context.Background(), titles)
	if err != nil {
		p.log.Warn("prefetch existence scan failed", "err", err)
		p.finish(batch)
		return
	}

	p.mu.Lock()
	var wantContent []*entry
	for _, e := range batch {
		p.exists[e.title] = found[e.title]
		// A cancel may have narrowed the entry while the scan ran.
		if e.state == stateInFlightExistContent && found[e.title] {
			e.state = stateInFlightContent
			wantContent = append(wantContent, e)
		}
	}
	p.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(4)
	for _, e := range wantContent {
		e := e
		g.Go(func() error {
			p.decode(e.title)
			return nil
		})
	}
	_ = g.Wait()

	p.finish(batch)
}

func (p *Pool) runContent(e *entry) {
	p.decode(e.title)
	p.finish([]*entry{e})
}

func (p *Pool) decode(title string) {
	art, err := p.src.Decode(context.Background(), title)
	if err != nil {
		p.log.Debug("prefetch decode failed", "title", title, "err", err)
		return
	}
	p.cache.Insert(title, art)
}

// finish removes completed entries and compacts the order queue's head.
func (p *Pool) finish(batch []*entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range batch {
		delete(p.entries, e.title)
	}
	for p.order.Len() > 0 {
		head, live := p.entries[p.order.Front()]
		if live && head.state != stateIgnored {
			break
		}
		if live {
			delete(p.entries, p.order.Front())
		}
		p.order.PopFront()
	}
}
