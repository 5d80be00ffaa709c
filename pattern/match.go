package pattern

import "strings"

// Capture is one captured group's rune-index span within the subject, or,
// for a "()" position capture, a single rune offset with IsPosition set.
type Capture struct {
	Start      int
	End        int
	IsPosition bool
}

// Match is the result of one successful Find: the overall match span plus
// any captures, all as rune indices into the []rune the caller matched
// against (not byte offsets; callers working with raw strings should
// keep the []rune around, e.g. via Runes).
type Match struct {
	Start, End int
	Captures   []Capture
}

// Runes converts a string to the []rune slice every function in this
// package operates on, so callers don't silently pass byte offsets to
// rune-indexed APIs.
func Runes(s string) []rune { return []rune(s) }

// Slice returns the substring of src (as produced by Runes) covered by
// [start, end).
func Slice(src []rune, start, end int) string {
	return string(src[start:end])
}

// Group returns the text of capture i (0-indexed) in src, or the whole
// match's text if m has no captures and i == 0.
func (m *Match) Group(src []rune, i int) string {
	if len(m.Captures) == 0 && i == 0 {
		return string(src[m.Start:m.End])
	}
	if i < 0 || i >= len(m.Captures) {
		return ""
	}
	c := m.Captures[i]
	if c.IsPosition {
		return ""
	}
	return string(src[c.Start:c.End])
}

// Find attempts pattern against src starting no earlier than rune offset
// init (negative counts back from the end, as in Lua's string.find),
// returning the first match at or after init, or nil if none exists.
func Find(src []rune, pattern string, init int) (*Match, error) {
	pat := []rune(pattern)
	anchor := false
	p := 0
	if len(pat) > 0 && pat[0] == '^' {
		anchor = true
		p = 1
	}

	if init < 0 {
		init = len(src) + init
		if init < 0 {
			init = 0
		}
	}
	if init > len(src) {
		return nil, nil
	}

	for s := init; ; s++ {
		ms := newMatchState(src, pat)
		e, err := ms.doMatch(s, p)
		if err != nil {
			return nil, err
		}
		if e >= 0 {
			return buildMatch(ms, s, e), nil
		}
		if anchor || s >= len(src) {
			return nil, nil
		}
	}
}

func buildMatch(ms *matchState, s, e int) *Match {
	caps := make([]Capture, ms.level)
	for i := 0; i < ms.level; i++ {
		if ms.capLen[i] == capPosition {
			caps[i] = Capture{Start: ms.capStart[i], End: ms.capStart[i], IsPosition: true}
		} else {
			caps[i] = Capture{Start: ms.capStart[i], End: ms.capStart[i] + ms.capLen[i]}
		}
	}
	return &Match{Start: s, End: e, Captures: caps}
}

// Gmatch returns an iterator function yielding every non-overlapping match
// of pattern in src in order, matching Lua's string.gmatch semantics: an
// empty match advances by one rune so the iterator always makes progress.
func Gmatch(src []rune, pattern string) func() (*Match, error) {
	pos := 0
	done := false
	return func() (*Match, error) {
		if done || pos > len(src) {
			return nil, nil
		}
		m, err := Find(src, pattern, pos)
		if err != nil || m == nil {
			done = true
			return nil, err
		}
		if m.End == pos {
			pos = m.End + 1
		} else {
			pos = m.End
		}
		if m.End >= len(src) {
			done = true
		}
		return m, nil
	}
}

// Gsub replaces up to maxN (negative for unlimited) non-overlapping
// matches of pattern in src, calling repl for each with the matched
// span's group texts (group 0 is always the whole match) and substituting
// its return value. It returns the resulting string and the number of
// substitutions made.
func Gsub(src []rune, pattern string, maxN int, repl func(groups []string) string) (string, int, error) {
	var b strings.Builder
	pos := 0
	count := 0
	for maxN < 0 || count < maxN {
		m, err := Find(src, pattern, pos)
		if err != nil {
			return "", count, err
		}
		if m == nil {
			break
		}
		b.WriteString(string(src[pos:m.Start]))
		groups := make([]string, 1+len(m.Captures))
		groups[0] = string(src[m.Start:m.End])
		for i := range m.Captures {
			groups[i+1] = m.Group(src, i)
		}
		b.WriteString(repl(groups))
		count++
		if m.End == pos && m.End == m.Start {
			if m.End < len(src) {
				b.WriteString(string(src[m.End]))
			}
			pos = m.End + 1
		} else {
			pos = m.End
		}
		if pos > len(src) {
			break
		}
	}
	if pos <= len(src) {
		b.WriteString(string(src[pos:]))
	}
	return b.String(), count, nil
}
