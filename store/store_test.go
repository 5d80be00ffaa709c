package store

import (
	"context"
	"testing"

	"github.com/mwcore/wikirender/token"
)

func TestMemStoreRoundTrip(t *testing.T) {
	m := NewMemStore()
	m.Put(&Article{Title: "A", Model: ModelWikitext, Body: "body"})

	a, err := m.Get(context.Background(), "A")
	if err != nil {
		t.Fatal(err)
	}
	if a.Body != "body" || a.ID == 0 {
		t.Errorf("article = %+v", a)
	}
	if _, err := m.Get(context.Background(), "B"); err != ErrNotFound {
		t.Errorf("missing article error = %v", err)
	}
	if !m.Contains(context.Background(), "A") || m.Contains(context.Background(), "B") {
		t.Error("Contains mismatch")
	}
}

func TestCachedStoreServesFromCache(t *testing.T) {
	m := NewMemStore()
	m.Put(&Article{Title: "A", Model: ModelWikitext, Body: "v1"})
	c := NewCachedStore(m, 4)

	a, err := c.Get(context.Background(), "A")
	if err != nil {
		t.Fatal(err)
	}
	// A backing change is not observed while the entry is cached.
	m.Put(&Article{Title: "A", Model: ModelWikitext, Body: "v2"})
	b, err := c.Get(context.Background(), "A")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("cache did not serve the same entry")
	}
}

func TestCachedStoreInsert(t *testing.T) {
	m := NewMemStore()
	c := NewCachedStore(m, 4)
	c.Insert("X", &Article{Title: "X", Body: "prefetched"})
	a, err := c.Get(context.Background(), "X")
	if err != nil || a.Body != "prefetched" {
		t.Errorf("insert not visible: %v, %v", a, err)
	}
	if c.MemoryUsed() != 1 {
		t.Errorf("MemoryUsed = %d", c.MemoryUsed())
	}
}

func TestTemplateCacheLRU(t *testing.T) {
	tc := NewTemplateCache(2)
	tc.Put(1, ParsedTemplate{Tokens: []token.Token{{Kind: token.Text}}})
	tc.Put(2, ParsedTemplate{})
	tc.Put(3, ParsedTemplate{})

	if _, ok := tc.Get(1); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := tc.Get(3); !ok {
		t.Error("newest entry missing")
	}
}
