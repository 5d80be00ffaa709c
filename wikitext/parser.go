// Package wikitext implements the grammar-driven wikitext tokeniser:
// a deterministic parser that turns a raw UTF-8 source buffer into a
// token tree, recovering to literal Text on any local grammar mismatch
// rather than failing the whole parse.
package wikitext

import (
	"fmt"

	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/strip"
	"github.com/mwcore/wikirender/token"
)

// ParseError is a fatal grammar-exhaustion failure: the parser could not
// make forward progress at all, as opposed to a local construct mismatch,
// which recovers to Text instead of erroring.
type ParseError struct {
	Pos     span.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("wikitext parse error at %s: %s", e.Pos, e.Message)
}

// Result is the output of a top-level Parse.
type Result struct {
	HasOnlyInclude bool
	Tokens         []token.Token
}

// Parser holds the mutable scan state for one article/template body.
type Parser struct {
	cfg            *Config
	src            string
	pos            int
	including      bool
	hasOnlyInclude bool
	depth          int
}

// maxNestingDepth bounds matching-pair recursion so that pathological
// input (thousands of unmatched "{{") cannot blow the Go call stack;
// a bracketed construct that starts deeper than this is not attempted
// and is read as Text, so the failure never propagates outward.
const maxNestingDepth = 250

// Parse tokenises src. including is carried into nested parsers but
// changes neither the tokens produced nor HasOnlyInclude, which is set
// whenever an <onlyinclude> tag is seen at the top level.
func Parse(cfg *Config, src string, including bool) (Result, error) {
	p := &Parser{cfg: cfg, src: src, including: including}
	toks, err := p.scanRun(func(*Parser) bool { return false })
	if err != nil {
		return Result{}, err
	}
	return Result{HasOnlyInclude: p.hasOnlyInclude, Tokens: toks}, nil
}

func (p *Parser) fail(msg string) error {
	fm := span.NewFileMap(p.src)
	return &ParseError{Pos: fm.Position(p.pos), Message: msg}
}

func (p *Parser) eof() bool { return p.pos >= len(p.src) }

func (p *Parser) rest() string { return p.src[p.pos:] }

func (p *Parser) atLineStart() bool {
	return p.pos == 0 || p.src[p.pos-1] == '\n'
}

func (p *Parser) peekByte() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *Parser) hasPrefix(s string) bool {
	return len(p.rest()) >= len(s) && p.rest()[:len(s)] == s
}

// stopFn reports whether the scan loop should stop before consuming the
// byte at the current position (used to bound nested scans to a closing
// delimiter without the callee needing to know about it).
type stopFn func(p *Parser) bool

// scanRun is the main dispatch loop: it repeatedly tries each construct
// recognizer, falling back to extending a run of plain Text/NewLine when
// none match, until EOF or stop reports true.
func (p *Parser) scanRun(stop stopFn) ([]token.Token, error) {
	var out []token.Token
	textStart := -1

	flushText := func(end int) {
		if textStart >= 0 && end > textStart {
			out = append(out, token.Token{Kind: token.Text, Span: span.New(textStart, end)})
		}
		textStart = -1
	}

	for !p.eof() {
		if stop(p) {
			break
		}

		if tok, ok, err := p.tryNewline(); err != nil {
			return nil, err
		} else if ok {
			flushText(tok.Span.Start)
			out = append(out, tok)
			continue
		}

		start := p.pos
		tok, matched, err := p.tryConstruct()
		if err != nil {
			return nil, err
		}
		if matched {
			flushText(start)
			out = append(out, tok...)
			continue
		}

		if textStart < 0 {
			textStart = p.pos
		}
		p.advanceRune()
	}
	flushText(p.pos)
	return out, nil
}

func (p *Parser) advanceRune() {
	_, size := decodeRune(p.src[p.pos:])
	p.pos += size
}

func decodeRune(s string) (rune, int) {
	if len(s) == 0 {
		return 0, 0
	}
	for i := 1; i <= 4 && i <= len(s); i++ {
		if r := []rune(s[:i]); len(r) == 1 {
			return r[0], i
		}
	}
	return rune(s[0]), 1
}

func (p *Parser) tryNewline() (token.Token, bool, error) {
	if p.peekByte() != '\n' {
		return token.Token{}, false, nil
	}
	start := p.pos
	p.pos++
	return token.Token{Kind: token.NewLine, Span: span.New(start, p.pos)}, true, nil
}

// tryConstruct attempts every non-text construct in priority order,
// returning the tokens produced (usually exactly one) and whether any
// matched. A non-match never errors: it is always safe to recover to
// Text one rune at a time.
func (p *Parser) tryConstruct() ([]token.Token, bool, error) {
	switch {
	case p.hasPrefix("<!--"):
		t := p.parseComment()
		return []token.Token{t}, true, nil
	case p.atLineStart() && p.peekByte() == '=' && p.looksLikeHeading():
		t, err := p.parseHeading()
		if err != nil {
			return nil, false, err
		}
		return []token.Token{t}, true, nil
	case p.atLineStart() && p.hasPrefix("----"):
		t := p.parseHorizontalRule()
		return []token.Token{t}, true, nil
	case p.atLineStart() && isBullet(p.peekByte()):
		t, err := p.parseListItem()
		if err != nil {
			return nil, false, err
		}
		return []token.Token{t}, true, nil
	case p.atLineStart() && p.hasPrefix("{|"):
		if t, ok, err := p.parseTable(); err != nil {
			return nil, false, err
		} else if ok {
			return t, true, nil
		}
	case p.hasPrefix("{{{") && p.depth < maxNestingDepth:
		if t, ok, err := p.parseParameter(); err != nil {
			return nil, false, err
		} else if ok {
			return []token.Token{t}, true, nil
		}
	case p.hasPrefix("{{") && p.depth < maxNestingDepth:
		if t, ok, err := p.parseTemplate(); err != nil {
			return nil, false, err
		} else if ok {
			return []token.Token{t}, true, nil
		}
	case p.hasPrefix("[[") && p.depth < maxNestingDepth:
		if t, ok, err := p.parseWikiLink(); err != nil {
			return nil, false, err
		} else if ok {
			return []token.Token{t}, true, nil
		}
	case p.peekByte() == '[' && p.depth < maxNestingDepth:
		if t, ok, err := p.parseExternalLink(); err != nil {
			return nil, false, err
		} else if ok {
			return []token.Token{t}, true, nil
		}
	case p.hasPrefix("-{") && p.depth < maxNestingDepth:
		if t, ok, err := p.parseLangVariant(); err != nil {
			return nil, false, err
		} else if ok {
			return []token.Token{t}, true, nil
		}
	case p.peekByte() == '\'' && p.hasPrefix("''"):
		t, ok := p.parseTextStyle()
		if ok {
			return []token.Token{t}, true, nil
		}
	case p.peekByte() == 0x7f:
		if t, ok := p.parseStripMarker(); ok {
			return []token.Token{t}, true, nil
		}
	case p.peekByte() == '<':
		if t, ok, err := p.parseAngle(); err != nil {
			return nil, false, err
		} else if ok {
			return t, true, nil
		}
	case p.peekByte() == '&':
		if t, ok := p.parseEntity(); ok {
			return []token.Token{t}, true, nil
		}
	case p.peekByte() == '_' && p.hasPrefix("__"):
		if t, ok := p.parseBehaviorSwitch(); ok {
			return []token.Token{t}, true, nil
		}
	case p.depth == 0:
		if t, ok := p.parseMagicLink(); ok {
			return []token.Token{t}, true, nil
		}
	}
	return nil, false, nil
}

// reparse recursively tokenises the byte range s of p.src as a nested
// construct's content (e.g. a template argument or a parameter default),
// sharing config/including/depth+1 with the parent.
func (p *Parser) reparse(s span.Span) ([]token.Token, error) {
	sub := &Parser{cfg: p.cfg, src: p.src, pos: s.Start, including: p.including, depth: p.depth + 1}
	return sub.scanRun(func(inner *Parser) bool { return inner.pos >= s.End })
}

func isBullet(b byte) bool {
	return b == '*' || b == '#' || b == ':' || b == ';'
}

func (p *Parser) parseComment() token.Token {
	start := p.pos
	p.pos += len("<!--")
	idx := indexFrom(p.src, p.pos, "-->")
	if idx < 0 {
		p.pos = len(p.src)
		return token.Token{Kind: token.Comment, Span: span.New(start, p.pos), Unclosed: true}
	}
	p.pos = idx + len("-->")
	return token.Token{Kind: token.Comment, Span: span.New(start, p.pos)}
}

func indexFrom(s string, from int, sub string) int {
	if from > len(s) {
		return -1
	}
	idx := indexString(s[from:], sub)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func indexString(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

func (p *Parser) parseHorizontalRule() token.Token {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] == '-' {
		p.pos++
	}
	hasTrailing := false
	lineEnd := p.pos
	for lineEnd < len(p.src) && p.src[lineEnd] != '\n' {
		lineEnd++
	}
	if lineEnd > p.pos {
		hasTrailing = true
	}
	p.pos = lineEnd
	return token.Token{Kind: token.HorizontalRule, Span: span.New(start, p.pos), HasTrailingContent: hasTrailing}
}

func (p *Parser) parseBehaviorSwitch() (token.Token, bool) {
	// __NAME__ where NAME is uppercase letters/underscores only.
	start := p.pos
	i := start + 2
	for i < len(p.src) && (isUpperAZ(p.src[i]) || p.src[i] == '_') {
		i++
	}
	if !hasSuffixAt(p.src, i, "__") || i == start+2 {
		return token.Token{}, false
	}
	nameSpan := span.New(start+2, i)
	i += 2
	p.pos = i
	return token.Token{Kind: token.BehaviorSwitch, Span: span.New(start, p.pos), Name: nameSpan}, true
}

func isUpperAZ(b byte) bool { return b >= 'A' && b <= 'Z' }

func hasSuffixAt(s string, i int, suffix string) bool {
	return i+len(suffix) <= len(s) && s[i:i+len(suffix)] == suffix
}

// parseStripMarker recognises a strip-marker sentinel left behind by a
// previous expansion pass. No other construct begins with 0x7f, so a
// match here is unambiguous.
func (p *Parser) parseStripMarker() (token.Token, bool) {
	idx, width, ok := strip.MatchAt(p.rest())
	if !ok {
		return token.Token{}, false
	}
	start := p.pos
	p.pos += width
	return token.Token{Kind: token.StripMarker, Span: span.New(start, p.pos), MarkerIndex: idx}, true
}

func (p *Parser) parseEntity() (token.Token, bool) {
	start := p.pos
	end := indexFrom(p.src, p.pos, ";")
	if end < 0 || end-start > 12 || end == start+1 {
		return token.Token{}, false
	}
	candidate := p.src[start : end+1]
	r, ok := decodeEntity(candidate)
	if !ok {
		return token.Token{}, false
	}
	p.pos = end + 1
	return token.Token{Kind: token.Entity, Span: span.New(start, p.pos), Decoded: r}, true
}
