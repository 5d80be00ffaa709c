// Package strip implements the strip-marker mechanism used to protect
// extension and raw-HTML output from re-parsing as wikitext during
// template expansion: a piece of already-resolved content is replaced with
// an opaque sentinel, carried unmodified through the rest of the pipeline,
// and resolved back to real output only at HTML-emission time.
package strip

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags what kind of content a Marker hides, which in turn controls
// how the emitter treats its surrounding whitespace/paragraph context.
type Kind int

const (
	// Inline markers sit inside running text and never force a paragraph
	// break (e.g. an inline <ref> citation's numbered marker).
	Inline Kind = iota
	// Block markers are treated like a standalone block element (e.g. a
	// <gallery> or <templatestyles> <style> element).
	Block
	// NoWiki markers hide content that must render as literal text with
	// no further entity/markup interpretation.
	NoWiki
	// WikiRsSourceStart/End bracket a run of original wikitext source that
	// was pulled out and reinserted verbatim; used by the tacky-template
	// diff machinery to mark where a re-rendered template's source boundary
	// falls within expanded output.
	WikiRsSourceStart
	WikiRsSourceEnd
)

// Marker is one entry in a Registry: opaque content plus the Kind that
// governs how it's later absorbed into the document.
type Marker struct {
	Kind    Kind
	Content string
}

const prefix = "\x7f'\"`UNIQ-"
const suffix = "-QINU`\"'\x7f"

// markerText returns the sentinel string substituted into a token stream in
// place of m at index idx within its owning Registry.
func markerText(idx int) string {
	return prefix + strconv.Itoa(idx) + suffix
}

// Sentinel returns the sentinel text standing in for marker index idx,
// used when re-emitting an already-stripped token during expansion.
func Sentinel(idx int) string {
	return markerText(idx)
}

// Registry is the append-only per-render strip marker table. It is not
// safe for concurrent use; one Registry is created per article render.
type Registry struct {
	markers []Marker
}

// NewRegistry returns an empty marker table.
func NewRegistry() *Registry {
	return &Registry{}
}

// Insert records content under kind and returns the sentinel text that
// stands in for it everywhere else in the pipeline.
func (r *Registry) Insert(kind Kind, content string) string {
	idx := len(r.markers)
	r.markers = append(r.markers, Marker{Kind: kind, Content: content})
	return markerText(idx)
}

// Get returns the marker at idx.
func (r *Registry) Get(idx int) (Marker, bool) {
	if idx < 0 || idx >= len(r.markers) {
		return Marker{}, false
	}
	return r.markers[idx], true
}

// Len reports how many markers have been inserted.
func (r *Registry) Len() int {
	return len(r.markers)
}

// Find locates the first marker sentinel in s at or after `from`,
// returning its byte span [start,end) and parsed index, or ok=false if
// none is present.
func (r *Registry) Find(s string, from int) (start, end, idx int, ok bool) {
	for {
		p := strings.Index(s[from:], prefix)
		if p < 0 {
			return 0, 0, 0, false
		}
		start = from + p
		rest := s[start+len(prefix):]
		q := strings.Index(rest, suffix)
		if q < 0 {
			return 0, 0, 0, false
		}
		numText := rest[:q]
		n, err := strconv.Atoi(numText)
		if err != nil {
			from = start + len(prefix)
			continue
		}
		end = start + len(prefix) + q + len(suffix)
		return start, end, n, true
	}
}

// MatchAt reports whether s begins with a well-formed marker sentinel,
// returning its parsed index and total byte width. Used by the wikitext
// parser to treat a sentinel as a first-class terminal when expansion
// output is reparsed.
func MatchAt(s string) (idx, width int, ok bool) {
	if !strings.HasPrefix(s, prefix) {
		return 0, 0, false
	}
	rest := s[len(prefix):]
	q := strings.Index(rest, suffix)
	if q < 0 {
		return 0, 0, false
	}
	n, err := strconv.Atoi(rest[:q])
	if err != nil {
		return 0, 0, false
	}
	return n, len(prefix) + q + len(suffix), true
}

// Resolve replaces every marker sentinel in s with resolve's rendering
// of the underlying Marker. A marker's own Content may itself contain
// further sentinels; callers that need those resolved too call Resolve
// again from inside their callback.
func (r *Registry) Resolve(s string, resolve func(Marker) string) string {
	var b strings.Builder
	pos := 0
	for {
		start, end, idx, ok := r.Find(s, pos)
		if !ok {
			b.WriteString(s[pos:])
			return b.String()
		}
		b.WriteString(s[pos:start])
		m, found := r.Get(idx)
		if !found {
			b.WriteString(s[start:end])
		} else {
			b.WriteString(resolve(m))
		}
		pos = end
	}
}

// IsMarkerOnly reports whether s is exactly one marker sentinel with
// nothing else, used by the emitter to decide whether a paragraph
// consisting solely of a Block marker should itself avoid a <p> wrapper.
func (r *Registry) IsMarkerOnly(s string) (int, bool) {
	start, end, idx, ok := r.Find(s, 0)
	if !ok || start != 0 || end != len(s) {
		return 0, false
	}
	return idx, true
}

func (k Kind) String() string {
	switch k {
	case Inline:
		return "inline"
	case Block:
		return "block"
	case NoWiki:
		return "nowiki"
	case WikiRsSourceStart:
		return "source-start"
	case WikiRsSourceEnd:
		return "source-end"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}
