package prefetch

import (
	"context"

	"github.com/mwcore/wikirender/store"
)

// Store fronts a cached article store with the prefetch pool: Prefetch
// hints feed the pool, and a Get for a title the pool already has in
// hand cancels the pool's copy of the work so the queue never blocks
// the renderer.
type Store struct {
	cached *store.CachedStore
	pool   *Pool
}

// NewStore wires a prefetching store.
func NewStore(cached *store.CachedStore, pool *Pool) *Store {
	return &Store{cached: cached, pool: pool}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, titleKey string) (*store.Article, error) {
	// Overtake any pending or in-flight prefetch; losing the race just
	// means the work is duplicated, never corrupted.
	s.pool.Cancel(titleKey)
	return s.cached.Get(ctx, titleKey)
}

func (s *Store) Contains(ctx context.Context, titleKey string) bool {
	if exists, ok := s.pool.Exists(titleKey); ok {
		return exists
	}
	return s.cached.Contains(ctx, titleKey)
}

func (s *Store) Prefetch(titleKey string, priority int) {
	p := PriorityLow
	if priority > 0 {
		p = PriorityHigh
	}
	s.pool.Prefetch(titleKey, p)
}
