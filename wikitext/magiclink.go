package wikitext

import (
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/token"
)

// parseMagicLink recognises a bare URL autolink: one of Config.URLSchemes
// immediately followed by non-space content, with no enclosing "[...]" or
// "[[...]]" (those are handled by parseExternalLink and parseWikiLink,
// which run first in tryConstruct's priority order). Only attempted at
// depth 0 since MediaWiki does not autolink inside an already-bracketed
// link target.
func (p *Parser) parseMagicLink() (token.Token, bool) {
	scheme := p.cfg.MatchScheme(p.rest())
	if scheme == "" {
		return token.Token{}, false
	}

	start := p.pos
	end := start + len(scheme)
	depth := 0
	for end < len(p.src) {
		b := p.src[end]
		if isLineSpace(b) || b == '\n' || b == '<' || b == '"' {
			break
		}
		switch b {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				goto trim
			}
			depth--
		}
		end++
	}
trim:
	// Trim trailing punctuation that is almost never part of the URL
	// itself (sentence-final "." "," ";" ":" "!" "?").
	for end > start+len(scheme) {
		switch p.src[end-1] {
		case '.', ',', ';', ':', '!', '?':
			end--
			continue
		}
		break
	}

	if end <= start+len(scheme) {
		return token.Token{}, false
	}

	urlSpan := span.New(start, end)
	p.pos = end
	return token.Token{
		Kind: token.Autolink,
		Span: urlSpan,
		Target: []token.Token{
			{Kind: token.Text, Span: urlSpan},
		},
	}, true
}
