package wikitext

import (
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/token"
)

// looksLikeHeading only re-checks that the current byte is "="; every
// "=" at line start, a stray one included, goes on to the full heading
// scan.
func (p *Parser) looksLikeHeading() bool {
	return p.peekByte() == '='
}

// parseHeading recognises a heading line: the level is
// min(n, m) of the leading/trailing "=" run lengths on the same line,
// clamped to 1..=6. Trailing whitespace is trimmed before measuring the
// closing run. It never falls back to Text: a line with no trailing run
// at all still becomes a heading, of level 1.
func (p *Parser) parseHeading() (token.Token, error) {
	start := p.pos
	lineEnd := start
	for lineEnd < len(p.src) && p.src[lineEnd] != '\n' {
		lineEnd++
	}
	line := p.src[start:lineEnd]

	leading := 0
	for leading < len(line) && line[leading] == '=' {
		leading++
	}

	trimmed := p.cfg.trimHeadingTrail(line)

	trailing := 0
	for trailing < len(trimmed) && trimmed[len(trimmed)-1-trailing] == '=' {
		trailing++
	}
	// Don't let the trailing run eat back into the leading run on a
	// short all-equals line like "===".
	if trailing > len(trimmed)-leading {
		trailing = len(trimmed) - leading
		if trailing < 0 {
			trailing = 0
		}
	}

	level := leading
	if trailing < level {
		level = trailing
	}
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}

	contentStart := start + level
	contentEnd := start + len(trimmed) - level
	if contentEnd < contentStart {
		contentEnd = contentStart
	}

	sub := &Parser{cfg: p.cfg, src: p.src, pos: contentStart, including: p.including, depth: p.depth + 1}
	content, err := sub.scanRun(func(inner *Parser) bool { return inner.pos >= contentEnd })
	if err != nil {
		return token.Token{}, err
	}

	p.pos = lineEnd
	return token.Token{
		Kind:    token.Heading,
		Span:    span.New(start, p.pos),
		Level:   level,
		Content: content,
	}, nil
}

func isHSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r'
}
