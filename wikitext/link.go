package wikitext

import (
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/token"
)

// parseWikiLink recognises "[[target]]" / "[[target|display]]", reusing
// the same top-level-pipe splitter as templates since the nesting rules
// are identical (a pipe inside a nested {{...}} or [[...]] never ends the
// outer link). Only the first pipe is meaningful; a trailing run of
// lowercase ASCII letters immediately after "]]" is captured as Trail so
// the emitter can visually fuse it into the link text (e.g. "[[cat]]s"
// renders as a single "cats" link).
func (p *Parser) parseWikiLink() (token.Token, bool, error) {
	if !p.hasPrefix("[[") {
		return token.Token{}, false, nil
	}
	start := p.pos
	segs, after, ok := splitTopLevel(p.src, start+2, "]]")
	if !ok {
		return token.Token{}, false, nil
	}

	target, err := p.reparse(segs[0])
	if err != nil {
		return token.Token{}, false, err
	}

	var args []token.Argument
	if len(segs) > 1 {
		displaySpan := span.New(segs[1].Start, segs[len(segs)-1].End)
		content, err := p.reparse(displaySpan)
		if err != nil {
			return token.Token{}, false, err
		}
		args = []token.Argument{{Content: content, Delimiter: -1, Terminator: -1, Span: displaySpan}}
	}

	trailEnd := after
	for trailEnd < len(p.src) && isTrailByte(p.src[trailEnd]) {
		trailEnd++
	}
	var trailSpan span.Span
	hasTrail := trailEnd > after
	if hasTrail {
		trailSpan = span.New(after, trailEnd)
	}
	p.pos = trailEnd

	return token.Token{
		Kind:     token.Link,
		Span:     span.New(start, p.pos),
		Target:   target,
		Args:     args,
		Trail:    trailSpan,
		HasTrail: hasTrail,
	}, true, nil
}

func isTrailByte(b byte) bool {
	return b >= 'a' && b <= 'z'
}

// parseExternalLink recognises "[scheme:url]" / "[scheme:url display
// text]". A bare "[" with no recognised Config.URLSchemes prefix is not a
// construct match at all and falls back to literal text one rune at a
// time, same as every other recognizer.
func (p *Parser) parseExternalLink() (token.Token, bool, error) {
	if p.peekByte() != '[' {
		return token.Token{}, false, nil
	}
	start := p.pos
	urlStart := start + 1
	if p.cfg.MatchScheme(p.src[urlStart:]) == "" {
		return token.Token{}, false, nil
	}

	urlEnd := urlStart
	for urlEnd < len(p.src) && p.src[urlEnd] != ' ' && p.src[urlEnd] != ']' && p.src[urlEnd] != '\n' {
		urlEnd++
	}
	targetSpan := span.New(urlStart, urlEnd)

	textStart := urlEnd
	for textStart < len(p.src) && p.src[textStart] == ' ' {
		textStart++
	}
	closeIdx := indexFrom(p.src, textStart, "]")
	if closeIdx < 0 {
		return token.Token{}, false, nil
	}
	textSpan := span.New(textStart, closeIdx)
	end := closeIdx + 1

	target, err := p.reparse(targetSpan)
	if err != nil {
		return token.Token{}, false, err
	}

	var args []token.Argument
	if textSpan.Len() > 0 {
		content, err := p.reparse(textSpan)
		if err != nil {
			return token.Token{}, false, err
		}
		args = []token.Argument{{Content: content, Delimiter: -1, Terminator: -1, Span: textSpan}}
	}

	p.pos = end
	return token.Token{
		Kind:   token.ExternalLink,
		Span:   span.New(start, end),
		Target: target,
		Args:   args,
	}, true, nil
}
