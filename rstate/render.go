package rstate

import (
	"time"

	"github.com/mwcore/wikirender/strip"
)

// Reference is one stored <ref> citation.
type Reference struct {
	Group   string
	Name    string // "" if unnamed
	Content string
	ID      int // ascending page-unique id
}

// ReferenceStore groups references by Group and assigns ascending page-
// unique ids, supporting `follow=` appends into an existing named ref.
type ReferenceStore struct {
	refs    []*Reference
	byName  map[string]*Reference // group+"\x00"+name -> ref, for named lookups
	nextID  int
}

// NewReferenceStore returns an empty reference store.
func NewReferenceStore() *ReferenceStore {
	return &ReferenceStore{byName: make(map[string]*Reference)}
}

// Add records a new reference (or, if name is non-empty and already
// seen in group, returns the existing one for the use-site renderer to
// re-cite). follow, when non-empty, is appended to the named ref's
// content instead of creating a new citation.
func (rs *ReferenceStore) Add(group, name, content, follow string) *Reference {
	key := group + "\x00" + name
	if name != "" {
		if existing, ok := rs.byName[key]; ok {
			if follow != "" {
				existing.Content += follow
			}
			return existing
		}
	}
	rs.nextID++
	ref := &Reference{Group: group, Name: name, Content: content, ID: rs.nextID}
	rs.refs = append(rs.refs, ref)
	if name != "" {
		rs.byName[key] = ref
	}
	return ref
}

// ByGroup returns every reference in insertion order belonging to group,
// for a <references> rendering.
func (rs *ReferenceStore) ByGroup(group string) []*Reference {
	var out []*Reference
	for _, r := range rs.refs {
		if r.Group == group {
			out = append(out, r)
		}
	}
	return out
}

// LabelledSection is a `[begin, end)` wikitext range recorded by <section>
// for a (article, name) pair.
type LabelledSection struct {
	Article    string
	Name       string
	Begin, End int
}

// OutlineEntry is one heading anchor with a collision-counted id.
type OutlineEntry struct {
	Level int
	Text  string
	ID    string
}

// State is the full per-article render state: created at render entry,
// threaded by pointer through the whole pipeline, and consumed (read,
// never reset) by the emitter.
type State struct {
	Strip *strip.Registry

	// ExternalLinkOrdinal is the next ordinal to assign an empty-content
	// external link.
	ExternalLinkOrdinal int

	Categories map[string]bool
	CategoryOrder []string

	// Styles is the ordered set of loaded CSS source ids plus their
	// concatenated text.
	StyleIDs  map[string]bool
	StyleText []string

	Indicators map[string]string

	References *ReferenceStore

	Sections []LabelledSection

	Outline []OutlineEntry
	headingIDCounts map[string]int

	// Timings is the host-call diagnostics map keyed by invoked title.
	Timings map[string]*Timing

	RenderStart time.Time
}

// Timing accumulates call count and wall time for one titled host call.
type Timing struct {
	Calls int
	Wall  time.Duration
	// Unchanged is set when a repeat transclusion produced byte-identical
	// output within this render. It is reported in the timing map only;
	// nothing in the pipeline reads it back.
	Unchanged bool
}

// NewState allocates a fresh per-render State.
func NewState() *State {
	return &State{
		Strip:           strip.NewRegistry(),
		Categories:      make(map[string]bool),
		StyleIDs:        make(map[string]bool),
		Indicators:      make(map[string]string),
		References:      NewReferenceStore(),
		Timings:         make(map[string]*Timing),
		headingIDCounts: make(map[string]int),
		RenderStart:     time.Time{},
	}
}

// AddCategory records title as a category, deduplicating.
func (s *State) AddCategory(t string) {
	if s.Categories[t] {
		return
	}
	s.Categories[t] = true
	s.CategoryOrder = append(s.CategoryOrder, t)
}

// AddStyle appends CSS text under a dedupe key of (src, wrapper).
func (s *State) AddStyle(key, css string) {
	if s.StyleIDs[key] {
		return
	}
	s.StyleIDs[key] = true
	s.StyleText = append(s.StyleText, css)
}

// NextHeadingID assigns a collision-counted anchor id for a heading with
// the given slug base.
func (s *State) NextHeadingID(base string) string {
	n := s.headingIDCounts[base]
	s.headingIDCounts[base] = n + 1
	if n == 0 {
		return base
	}
	return base + "_" + itoa(n+1)
}

// BeginSection records the start of a labelled section range for
// (article, name). A later EndSection for the same pair narrows it.
func (s *State) BeginSection(article, name string, begin, end int) {
	s.Sections = append(s.Sections, LabelledSection{
		Article: article,
		Name:    name,
		Begin:   begin,
		End:     end,
	})
}

// EndSection closes the most recent open labelled section for
// (article, name) at the given offset.
func (s *State) EndSection(article, name string, at int) {
	for i := len(s.Sections) - 1; i >= 0; i-- {
		sec := &s.Sections[i]
		if sec.Article == article && sec.Name == name {
			sec.End = at
			return
		}
	}
}

// MarkUnchanged flags a title whose latest expansion matched the
// previous one exactly.
func (s *State) MarkUnchanged(title string) {
	t, ok := s.Timings[title]
	if !ok {
		t = &Timing{}
		s.Timings[title] = t
	}
	t.Unchanged = true
}

// RecordTiming accumulates wall time for a titled host call.
func (s *State) RecordTiming(title string, d time.Duration) {
	t, ok := s.Timings[title]
	if !ok {
		t = &Timing{}
		s.Timings[title] = t
	}
	t.Calls++
	t.Wall += d
}
