// Package store defines the article-store interface the renderer treats as
// an external collaborator plus a bounded, LRU-backed in-process cache in
// front of it, and the parsed-template cache keyed by article id.
package store

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/mwcore/wikirender/token"
)

// ErrNotFound is returned by Get when no article exists under title.
var ErrNotFound = errors.New("store: article not found")

// ContentModel distinguishes wikitext articles from Scribunto modules and
// other content models.
type ContentModel string

const (
	ModelWikitext ContentModel = "wikitext"
	ModelModule   ContentModel = "Scribunto"
	ModelJSON     ContentModel = "json"
	ModelCSS      ContentModel = "css"
)

// Article is the {title -> body} record the core consumes.
type Article struct {
	ID       int64
	Title    string
	Model    ContentModel
	Body     string
	Redirect string // empty if not a redirect
}

// Store is the external collaborator interface consumed by the core.
type Store interface {
	// Get fetches a decoded article by normalised title key, or
	// ErrNotFound.
	Get(ctx context.Context, titleKey string) (*Article, error)
	// Contains reports whether titleKey exists, ideally answerable from
	// cache without I/O.
	Contains(ctx context.Context, titleKey string) bool
	// Prefetch hints that titleKey is likely to be needed soon; never fails
	// observably.
	Prefetch(titleKey string, priority int)
}

// MemStore is a trivial in-memory Store implementation, useful for
// tests and for embedding a fixed article corpus.
type MemStore struct {
	mu       sync.RWMutex
	articles map[string]*Article
	nextID   int64
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{articles: make(map[string]*Article)}
}

// Put inserts or replaces an article, assigning it an id if it doesn't
// already have one.
func (m *MemStore) Put(a *Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		m.nextID++
		a.ID = m.nextID
	}
	m.articles[a.Title] = a
}

func (m *MemStore) Get(_ context.Context, titleKey string) (*Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.articles[titleKey]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *MemStore) Contains(_ context.Context, titleKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.articles[titleKey]
	return ok
}

func (m *MemStore) Prefetch(string, int) {}

// CachedStore wraps a backing Store with an LRU article cache capped by
// entry count.
type CachedStore struct {
	backing Store
	cache   *lru.Cache
}

// NewCachedStore wraps backing with an LRU cache holding up to
// maxEntries decoded articles.
func NewCachedStore(backing Store, maxEntries int) *CachedStore {
	c, _ := lru.New(maxEntries)
	return &CachedStore{backing: backing, cache: c}
}

func (c *CachedStore) Get(ctx context.Context, titleKey string) (*Article, error) {
	if v, ok := c.cache.Get(titleKey); ok {
		return v.(*Article), nil
	}
	a, err := c.backing.Get(ctx, titleKey)
	if err != nil {
		return nil, err
	}
	c.cache.Add(titleKey, a)
	return a, nil
}

func (c *CachedStore) Contains(ctx context.Context, titleKey string) bool {
	if c.cache.Contains(titleKey) {
		return true
	}
	return c.backing.Contains(ctx, titleKey)
}

func (c *CachedStore) Prefetch(titleKey string, priority int) {
	c.backing.Prefetch(titleKey, priority)
}

// Insert seeds the cache directly, used by the prefetch pool once it has
// decoded an article.
func (c *CachedStore) Insert(titleKey string, a *Article) {
	c.cache.Add(titleKey, a)
}

// MemoryUsed reports the number of cached entries, standing in for the
// "cache memory accounting for diagnostics" external interface; a byte-
// accurate accounting would require per-article size tracking the backing
// store doesn't expose here.
func (c *CachedStore) MemoryUsed() int {
	return c.cache.Len()
}

// ParsedTemplate is a cached parse of a template/module body.
type ParsedTemplate struct {
	Tokens         []token.Token
	HasOnlyInclude bool
}

// TemplateCache bounds the parsed-template cache by entry count with
// LRU eviction, keyed by article id so a title rename or redirect change
// doesn't serve a stale parse under the old key.
type TemplateCache struct {
	cache *lru.Cache
}

// NewTemplateCache returns a template-parse cache holding up to
// maxEntries parsed trees.
func NewTemplateCache(maxEntries int) *TemplateCache {
	c, _ := lru.New(maxEntries)
	return &TemplateCache{cache: c}
}

func (t *TemplateCache) Get(articleID int64) (ParsedTemplate, bool) {
	v, ok := t.cache.Get(articleID)
	if !ok {
		return ParsedTemplate{}, false
	}
	return v.(ParsedTemplate), true
}

func (t *TemplateCache) Put(articleID int64, p ParsedTemplate) {
	t.cache.Add(articleID, p)
}
