package wikitext

import (
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/token"
)

// parseListItem consumes a run of "[*#:;]+" bullets at line start plus the
// rest of the line as content. List well-formedness / nesting is entirely
// an emitter concern; the parser only records the bullet string and the
// line's content tokens.
func (p *Parser) parseListItem() (token.Token, error) {
	start := p.pos
	for !p.eof() && isBullet(p.peekByte()) {
		p.pos++
	}
	bullets := span.New(start, p.pos)

	// Space between the bullets and the content is decorative.
	for !p.eof() && (p.peekByte() == ' ' || p.peekByte() == '\t') {
		p.pos++
	}

	lineEnd := p.pos
	for lineEnd < len(p.src) && p.src[lineEnd] != '\n' {
		lineEnd++
	}

	sub := &Parser{cfg: p.cfg, src: p.src, pos: p.pos, including: p.including, depth: p.depth + 1}
	content, err := sub.scanRun(func(inner *Parser) bool { return inner.pos >= lineEnd })
	if err != nil {
		return token.Token{}, err
	}
	p.pos = lineEnd

	// The newline between two consecutive list items is folded into the
	// first item so the list-terminating newline stays unambiguous for
	// the emitter.
	if p.pos < len(p.src) && p.src[p.pos] == '\n' &&
		p.pos+1 < len(p.src) && isBullet(p.src[p.pos+1]) {
		p.pos++
	}

	return token.Token{
		Kind:    token.ListItem,
		Span:    span.New(start, p.pos),
		Bullets: bullets,
		Content: content,
	}, nil
}
