// Package title implements MediaWiki-style title parsing and
// normalisation: splitting a raw title string into interwiki, namespace,
// text, and fragment parts with case folding, whitespace/underscore
// folding, and bidirectional-control stripping.
//
// First-letter case folding uses golang.org/x/text/cases for
// locale-correct uppercasing instead of a bare rune-0 unicode.ToUpper.
package title

import (
	"html"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// Title is a normalised article title: interwiki, namespace, local text,
// and fragment, stored as byte offsets into a single backing string so
// that each accessor is a cheap slice rather than an allocation.
type Title struct {
	text           string
	interwikiDelim int // -1 if absent; else index of ':' after interwiki
	nsDelim        int // -1 if absent; else index of ':' after namespace name
	fragmentDelim  int // -1 if absent; else index of '#'
	namespace      *Namespace
}

// New parses text into a Title using defaultNS when no namespace prefix
// is present.
func New(tbl *NamespaceTable, text string, defaultNS *Namespace) Title {
	normalized := Normalize(text)

	ns := defaultNS
	rest := normalized
	if idx := strings.Index(normalized, ":"); idx >= 0 {
		lhs := strings.TrimRight(normalized[:idx], " ")
		if found := tbl.ByName(lhs); found != nil {
			ns = found
			rest = strings.TrimLeft(normalized[idx+1:], " ")
		}
	}
	if ns == nil {
		ns = tbl.Main()
	}

	body := rest
	var fragment string
	hasFragment := false
	if idx := strings.Index(rest, "#"); idx >= 0 {
		body = strings.TrimRight(rest[:idx], " ")
		fragment = rest[idx+1:]
		hasFragment = true
	}

	var fragPtr *string
	if hasFragment {
		fragPtr = &fragment
	}
	t, _ := FromParts(ns, body, fragPtr, nil)
	return t
}

// FromParts builds a Title from an already-resolved namespace plus
// text, fragment, and interwiki parts.
func FromParts(ns *Namespace, text string, fragment, interwiki *string) (Title, error) {
	var b strings.Builder

	interwikiDelim := -1
	if interwiki != nil {
		norm := Normalize(*interwiki)
		interwikiDelim = len(norm)
		b.WriteString(norm)
		b.WriteByte(':')
	}

	nsDelim := -1
	if ns.Name != "" {
		nsDelim = b.Len() + len(ns.Name)
		b.WriteString(ns.Name)
		b.WriteByte(':')
	}

	body := Normalize(text)
	if ns.Case == FirstLetter && body != "" {
		r := []rune(body)
		if unicode.IsLower(r[0]) {
			b.WriteString(titleCaser.String(string(r[0])))
			b.WriteString(string(r[1:]))
		} else {
			b.WriteString(body)
		}
	} else {
		b.WriteString(body)
	}

	fragmentDelim := -1
	if fragment != nil {
		fragmentDelim = b.Len()
		b.WriteByte('#')
		b.WriteString(Normalize(*fragment))
	}

	return Title{
		text:           b.String(),
		interwikiDelim: interwikiDelim,
		nsDelim:        nsDelim,
		fragmentDelim:  fragmentDelim,
		namespace:      ns,
	}, nil
}

// IsValid reports whether text could name an article at all: non-empty
// after normalisation and free of the byte set that can never appear in
// a stored title.
func IsValid(text string) bool {
	norm := Normalize(text)
	if norm == "" || norm == "#" {
		return false
	}
	if strings.ContainsAny(norm, "<>[]{}|\x7f") {
		return false
	}
	return true
}

// Interwiki returns the interwiki prefix, or "" if none.
func (t Title) Interwiki() string {
	if t.interwikiDelim < 0 {
		return ""
	}
	return t.text[:t.interwikiDelim]
}

// Namespace returns the title's namespace.
func (t Title) Namespace() *Namespace {
	return t.namespace
}

// Fragment returns the fragment (after '#'), or "" if none.
func (t Title) Fragment() string {
	if t.fragmentDelim < 0 {
		return ""
	}
	return t.text[t.fragmentDelim+1:]
}

// Key returns the local part of the title (namespace-qualified, without
// interwiki or fragment): "Namespace:Title/Sub/Page".
func (t Title) Key() string {
	start := 0
	if t.interwikiDelim >= 0 {
		start = t.interwikiDelim + 1
	}
	end := len(t.text)
	if t.fragmentDelim >= 0 {
		end = t.fragmentDelim
	}
	return t.text[start:end]
}

// Text returns the title text without namespace, interwiki, or fragment:
// "Title/Sub/Page".
func (t Title) Text() string {
	start := 0
	if t.nsDelim >= 0 {
		start = t.nsDelim + 1
	}
	end := len(t.text)
	if t.fragmentDelim >= 0 {
		end = t.fragmentDelim
	}
	return t.text[start:end]
}

// FullText returns the complete title string including interwiki,
// namespace, and fragment.
func (t Title) FullText() string {
	return t.text
}

// BaseText returns the parent path of the page, without namespace:
// "Title/Sub".
func (t Title) BaseText() string {
	text := t.Text()
	if idx := strings.LastIndex(text, "/"); idx >= 0 {
		return text[:idx]
	}
	return text
}

// RootText returns the root path of the page: "Title".
func (t Title) RootText() string {
	text := t.Text()
	if idx := strings.Index(text, "/"); idx >= 0 {
		return text[:idx]
	}
	return text
}

// SubpageText returns the final subpage segment: "Page".
func (t Title) SubpageText() string {
	text := t.Text()
	if idx := strings.LastIndex(text, "/"); idx >= 0 {
		return text[idx+1:]
	}
	return text
}

// PartialURL returns the percent-encoded form of Key(), suitable for
// embedding in a generated article URL.
func (t Title) PartialURL() string {
	return percentEncodeNonAlnum(t.Key())
}

// String implements fmt.Stringer, returning Key().
func (t Title) String() string {
	return t.Key()
}

// Equal compares titles by their full text; namespace equality is
// implied because Key() embeds the namespace name.
func (t Title) Equal(other Title) bool {
	return t.text == other.text
}

func percentEncodeNonAlnum(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xf])
	}
	return b.String()
}

// isBidi reports whether r is a bidirectional text control character.
func isBidi(r rune) bool {
	return (r >= '\u200e' && r <= '\u200f') || (r >= '\u202a' && r <= '\u202e')
}

// isSpacelike reports whether r should be treated like whitespace in
// title text: underscores fold to spaces, same as any Unicode
// whitespace rune.
func isSpacelike(r rune) bool {
	return r == '_' || unicode.IsSpace(r)
}

func isTrimmable(r rune) bool {
	return isBidi(r) || isSpacelike(r)
}

// Normalize decodes HTML entities, strips bidi control marks, and folds
// runs of whitespace/underscores to a single space, trimming at the
// string's edges. It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	decoded := html.UnescapeString(text)

	runes := []rune(decoded)
	var out strings.Builder
	out.Grow(len(decoded))

	i := 0
	wroteAny := false
	for i < len(runes) {
		r := runes[i]
		if !isTrimmable(r) {
			out.WriteRune(r)
			wroteAny = true
			i++
			continue
		}

		// Consume the whole run of trimmable runes.
		j := i
		sawSpacelike := isSpacelike(r)
		for j < len(runes) && isTrimmable(runes[j]) {
			if isSpacelike(runes[j]) {
				sawSpacelike = true
			}
			j++
		}

		// Only emit a collapsed space if this run is internal (not at the
		// very start or very end of the decoded text) and actually
		// contained a space-like rune (pure bidi runs collapse to nothing).
		if i != 0 && j != len(runes) && sawSpacelike {
			out.WriteByte(' ')
		}
		i = j
	}

	if !wroteAny {
		return ""
	}
	return out.String()
}
