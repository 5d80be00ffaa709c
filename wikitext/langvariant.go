package wikitext

import (
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/token"
)

// parseLangVariant recognises MediaWiki's language-converter markup: "-{
// TEXT }-", "-{ FLAG | VARIANT;VARIANT;... }-", where each VARIANT is
// either bare text (applies to every output variant) or "lang:text".
// Nesting of "-{...}-" and the usual {{...}}/[[...]] constructs inside it
// shares the same bracket-depth tracker used for templates and links.
func (p *Parser) parseLangVariant() (token.Token, bool, error) {
	if !p.hasPrefix("-{") {
		return token.Token{}, false, nil
	}
	start := p.pos
	segs, after, ok := splitTopLevel(p.src, start+2, "}-")
	if !ok {
		return token.Token{}, false, nil
	}

	tok := token.Token{Kind: token.LangVariant, Span: span.New(start, after)}

	var variantsSpan span.Span
	if len(segs) > 1 {
		flagSpan := segs[0]
		tok.RawFlag = p.src[flagSpan.Start:flagSpan.End]
		tok.HasRawFlag = true
		flagContent, err := p.reparse(flagSpan)
		if err != nil {
			return token.Token{}, false, err
		}
		tok.Flags = flagContent
		tok.HasFlags = true
		variantsSpan = span.New(segs[1].Start, segs[len(segs)-1].End)
	} else {
		variantsSpan = segs[0]
	}

	for _, part := range splitByTopLevelByte(p.src, variantsSpan, ';') {
		if part.Len() == 0 {
			continue
		}
		opt := token.LangVariantOption{}
		if colon := findTopLevelByte(p.src, part, ':'); colon >= 0 {
			opt.Lang = p.src[part.Start:colon]
			opt.HasLang = true
			text, err := p.reparse(span.New(colon+1, part.End))
			if err != nil {
				return token.Token{}, false, err
			}
			opt.Text = text
		} else {
			text, err := p.reparse(part)
			if err != nil {
				return token.Token{}, false, err
			}
			opt.Text = text
		}
		tok.Variants = append(tok.Variants, opt)
	}

	p.pos = after
	return tok, true, nil
}
