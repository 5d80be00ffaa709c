package wikitext

import (
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/token"
)

// parseTemplate recognises "{{target|arg|name=value}}". Argument splitting
// happens at the raw-byte level rather than through the tokeniser's
// construct dispatch, tracking bracket depth so a "|" or "=" nested inside
// an inner {{...}}, {{{...}}}, [[...]], or [...] never terminates the
// outer split early; each resulting byte range is then recursively
// retokenised via reparse so a nested construct still comes out as its own
// Template/Link/Parameter token.
func (p *Parser) parseTemplate() (token.Token, bool, error) {
	if !p.hasPrefix("{{") || p.hasPrefix("{{{") {
		return token.Token{}, false, nil
	}
	start := p.pos
	segs, after, ok := splitTopLevel(p.src, start+2, "}}")
	if !ok {
		return token.Token{}, false, nil
	}

	target, err := p.reparse(segs[0])
	if err != nil {
		return token.Token{}, false, err
	}

	args := make([]token.Argument, 0, len(segs)-1)
	for _, seg := range segs[1:] {
		arg, err := p.buildArgument(seg)
		if err != nil {
			return token.Token{}, false, err
		}
		args = append(args, arg)
	}

	p.pos = after
	return token.Token{
		Kind:   token.Template,
		Span:   span.New(start, after),
		Target: target,
		Args:   args,
	}, true, nil
}

// parseParameter recognises "{{{name}}}" / "{{{name|default}}}". Only the
// first top-level "|" splits name from default; any further "|" in the
// default is literal content, per MediaWiki's triple-brace grammar.
func (p *Parser) parseParameter() (token.Token, bool, error) {
	if !p.hasPrefix("{{{") {
		return token.Token{}, false, nil
	}
	start := p.pos
	segs, after, ok := splitTopLevel(p.src, start+3, "}}}")
	if !ok {
		return token.Token{}, false, nil
	}

	name, err := p.reparse(segs[0])
	if err != nil {
		return token.Token{}, false, err
	}

	tok := token.Token{
		Kind:   token.Parameter,
		Span:   span.New(start, after),
		Target: name,
	}
	if len(segs) > 1 {
		defSpan := span.New(segs[1].Start, segs[len(segs)-1].End)
		def, err := p.reparse(defSpan)
		if err != nil {
			return token.Token{}, false, err
		}
		tok.Default = def
		tok.HasDefault = true
	}

	p.pos = after
	return tok, true, nil
}

// buildArgument splits one pipe-delimited template argument segment on its
// first top-level "=" (if any) and retokenises both halves, inserting a
// literal "=" boundary token at Delimiter per token.Argument's contract.
func (p *Parser) buildArgument(seg span.Span) (token.Argument, error) {
	eq := findTopLevelEquals(p.src, seg)
	if eq < 0 {
		value, err := p.reparse(seg)
		if err != nil {
			return token.Argument{}, err
		}
		return token.Argument{Content: value, Delimiter: -1, Terminator: -1, Span: seg}, nil
	}

	name, err := p.reparse(span.New(seg.Start, eq))
	if err != nil {
		return token.Argument{}, err
	}
	value, err := p.reparse(span.New(eq+1, seg.End))
	if err != nil {
		return token.Argument{}, err
	}

	content := make([]token.Token, 0, len(name)+1+len(value))
	content = append(content, name...)
	content = append(content, token.Token{Kind: token.Generated, Span: span.New(eq, eq+1), Text: "="})
	content = append(content, value...)

	return token.Argument{
		Content:    content,
		Delimiter:  len(name),
		Terminator: -1,
		Span:       seg,
	}, nil
}

// braceUnit classifies the bracket-like token at src[i:], if any, for
// depth-tracking purposes: its byte width and its contribution to depth
// (+1 opening, -1 closing, 0 for anything else).
func braceUnit(src string, i int) (width int, delta int) {
	switch {
	case hasPrefixAtStr(src, i, "{{{"):
		return 3, 1
	case hasPrefixAtStr(src, i, "}}}"):
		return 3, -1
	case hasPrefixAtStr(src, i, "{{"):
		return 2, 1
	case hasPrefixAtStr(src, i, "}}"):
		return 2, -1
	case hasPrefixAtStr(src, i, "[["):
		return 2, 1
	case hasPrefixAtStr(src, i, "]]"):
		return 2, -1
	case hasPrefixAtStr(src, i, "-{"):
		return 2, 1
	case hasPrefixAtStr(src, i, "}-"):
		return 2, -1
	case src[i] == '[':
		return 1, 1
	case src[i] == ']':
		return 1, -1
	default:
		return 1, 0
	}
}

func hasPrefixAtStr(s string, i int, pre string) bool {
	return i+len(pre) <= len(s) && s[i:i+len(pre)] == pre
}

// splitTopLevel scans src starting at start for term ("}}" or "}}}") at
// bracket depth 0, splitting on depth-0 "|" bytes along the way. It
// returns the pipe-delimited segment spans (always at least one, even if
// term is found immediately) and the offset just past term.
func splitTopLevel(src string, start int, term string) ([]span.Span, int, bool) {
	var segments []span.Span
	depth := 0
	segStart := start
	i := start
	for i < len(src) {
		if depth == 0 && hasPrefixAtStr(src, i, term) {
			segments = append(segments, span.New(segStart, i))
			return segments, i + len(term), true
		}
		if depth == 0 && src[i] == '|' {
			segments = append(segments, span.New(segStart, i))
			i++
			segStart = i
			continue
		}
		w, d := braceUnit(src, i)
		depth += d
		if depth < 0 {
			depth = 0
		}
		i += w
	}
	return nil, 0, false
}

// findTopLevelEquals returns the byte offset of the first bracket-depth-0
// "=" inside seg, or -1 if none.
func findTopLevelEquals(src string, seg span.Span) int {
	return findTopLevelByte(src, seg, '=')
}

// findTopLevelByte returns the byte offset of the first bracket-depth-0
// occurrence of b inside seg, or -1 if none.
func findTopLevelByte(src string, seg span.Span, b byte) int {
	depth := 0
	i := seg.Start
	for i < seg.End {
		if depth == 0 && src[i] == b {
			return i
		}
		w, d := braceUnit(src, i)
		depth += d
		if depth < 0 {
			depth = 0
		}
		i += w
	}
	return -1
}

// splitByTopLevelByte splits seg on every bracket-depth-0 occurrence of
// sep, returning the spans between separators (always at least one).
func splitByTopLevelByte(src string, seg span.Span, sep byte) []span.Span {
	var out []span.Span
	depth := 0
	segStart := seg.Start
	i := seg.Start
	for i < seg.End {
		if depth == 0 && src[i] == sep {
			out = append(out, span.New(segStart, i))
			i++
			segStart = i
			continue
		}
		w, d := braceUnit(src, i)
		depth += d
		if depth < 0 {
			depth = 0
		}
		i += w
	}
	out = append(out, span.New(segStart, seg.End))
	return out
}

// splitByTopLevelSep is splitByTopLevelByte generalised to a multi-byte
// separator (table cell dividers "||"/"!!").
func splitByTopLevelSep(src string, seg span.Span, sep string) []span.Span {
	var out []span.Span
	depth := 0
	segStart := seg.Start
	i := seg.Start
	for i < seg.End {
		if depth == 0 && hasPrefixAtStr(src, i, sep) {
			out = append(out, span.New(segStart, i))
			i += len(sep)
			segStart = i
			continue
		}
		w, d := braceUnit(src, i)
		depth += d
		if depth < 0 {
			depth = 0
		}
		i += w
	}
	out = append(out, span.New(segStart, seg.End))
	return out
}
