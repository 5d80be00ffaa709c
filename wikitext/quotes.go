package wikitext

import (
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/token"
)

// parseTextStyle recognises a run of apostrophes ('', ''', or longer) and
// classifies it by position: a run immediately after a single non-
// space character that itself follows a space is "Orphan"; a run
// immediately after a space is "Space"; otherwise "Normal". Balancing
// ''/'''/''''' pairs into <i>/<b> is deferred entirely to the emitter;
// the parser only tags position.
func (p *Parser) parseTextStyle() (token.Token, bool) {
	start := p.pos
	n := 0
	for start+n < len(p.src) && p.src[start+n] == '\'' {
		n++
	}
	if n < 2 {
		return token.Token{}, false
	}

	var consumed int
	var style token.TextStyleKind
	switch {
	case n >= 5:
		consumed, style = 5, token.BoldItalic
	case n == 4:
		consumed, style = 3, token.Bold
	case n == 3:
		consumed, style = 3, token.Bold
	default:
		consumed, style = 2, token.Italic
	}

	pos := classifyQuotePosition(p.src, start)
	p.pos = start + consumed
	return token.Token{
		Kind:     token.TextStyleTok,
		Span:     span.New(start, p.pos),
		Style:    style,
		Position: pos,
	}, true
}

// classifyQuotePosition inspects the bytes immediately preceding start.
func classifyQuotePosition(src string, start int) token.BoldPosition {
	if start == 0 {
		return token.Normal
	}
	prev := src[start-1]
	if isLineSpace(prev) {
		return token.Space
	}
	if start < 2 {
		return token.Normal
	}
	prevPrev := src[start-2]
	if isLineSpace(prevPrev) && !isLineSpace(prev) {
		return token.Orphan
	}
	return token.Normal
}

func isLineSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n'
}
