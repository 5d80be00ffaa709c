package wikitext

import (
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/token"
)

// parseAngle dispatches everything that starts with "<" other than an
// HTML comment (handled earlier in tryConstruct): closing tags, the three
// inclusion-control tags (noinclude/includeonly/onlyinclude), extension
// tags whose body is opaque to the wikitext grammar, annotation tags whose
// body is ordinary wikitext, and the generic HTML-subset start/end tag.
func (p *Parser) parseAngle() ([]token.Token, bool, error) {
	if p.peekByte() != '<' {
		return nil, false, nil
	}
	start := p.pos

	if len(p.rest()) > 1 && p.src[start+1] == '/' {
		nameStart := start + 2
		i := nameStart
		for i < len(p.src) && isTagNameByte(p.src[i]) {
			i++
		}
		if i == nameStart {
			return nil, false, nil
		}
		name := p.src[nameStart:i]
		for i < len(p.src) && isHSpace(p.src[i]) {
			i++
		}
		if i >= len(p.src) || p.src[i] != '>' {
			return nil, false, nil
		}
		end := i + 1
		p.pos = end
		nameSpan := span.New(nameStart, nameStart+len(name))

		switch name {
		case "noinclude":
			return []token.Token{{Kind: token.EndInclude, Span: span.New(start, end), Mode: token.NoInclude}}, true, nil
		case "includeonly":
			return []token.Token{{Kind: token.EndInclude, Span: span.New(start, end), Mode: token.IncludeOnly}}, true, nil
		case "onlyinclude":
			p.hasOnlyInclude = true
			return []token.Token{{Kind: token.EndInclude, Span: span.New(start, end), Mode: token.OnlyInclude}}, true, nil
		}
		if p.cfg.IsAnnotationTag(name) {
			return []token.Token{{Kind: token.EndAnnotation, Span: span.New(start, end), Name: nameSpan}}, true, nil
		}
		if !p.cfg.IsAllowedHTMLTag(name) {
			p.pos = start
			return nil, false, nil
		}
		return []token.Token{{Kind: token.EndTag, Span: span.New(start, end), Name: nameSpan}}, true, nil
	}

	nameStart := start + 1
	i := nameStart
	for i < len(p.src) && isTagNameByte(p.src[i]) {
		i++
	}
	if i == nameStart {
		return nil, false, nil
	}
	name := p.src[nameStart:i]
	nameSpan := span.New(nameStart, i)

	attrs, after, selfClosing, ok := p.parseAttributes(i)
	if !ok {
		return nil, false, nil
	}

	switch name {
	case "noinclude":
		p.pos = after
		return []token.Token{{Kind: token.StartInclude, Span: span.New(start, after), Mode: token.NoInclude}}, true, nil
	case "includeonly":
		p.pos = after
		return []token.Token{{Kind: token.StartInclude, Span: span.New(start, after), Mode: token.IncludeOnly}}, true, nil
	case "onlyinclude":
		p.hasOnlyInclude = true
		p.pos = after
		return []token.Token{{Kind: token.StartInclude, Span: span.New(start, after), Mode: token.OnlyInclude}}, true, nil
	}

	if p.cfg.IsExtensionTag(name) {
		if selfClosing {
			p.pos = after
			return []token.Token{{Kind: token.Extension, Span: span.New(start, after), Name: nameSpan, Attrs: attrs}}, true, nil
		}
		closeTag := "</" + name + ">"
		closeIdx := indexFrom(p.src, after, closeTag)
		if closeIdx < 0 {
			p.pos = len(p.src)
			return []token.Token{{Kind: token.Extension, Span: span.New(start, p.pos), Name: nameSpan, Attrs: attrs}}, true, nil
		}
		contentSpan := span.New(after, closeIdx)
		end := closeIdx + len(closeTag)
		p.pos = end
		return []token.Token{{
			Kind: token.Extension, Span: span.New(start, end), Name: nameSpan, Attrs: attrs,
			ExtContent: contentSpan, HasExtContent: true,
		}}, true, nil
	}

	if p.cfg.IsAnnotationTag(name) {
		p.pos = after
		tok := token.Token{Kind: token.StartAnnotation, Span: span.New(start, after), Name: nameSpan, Attrs: attrs}
		for _, a := range attrs {
			if p.src[a.Name.Start:a.Name.End] == "static" && a.HasValue {
				tok.AnnoStatic = p.src[a.Value.Start:a.Value.End]
				tok.AnnoHasStatic = true
			}
		}
		return []token.Token{tok}, true, nil
	}

	if !p.cfg.IsAllowedHTMLTag(name) {
		return nil, false, nil
	}

	p.pos = after
	return []token.Token{{
		Kind: token.StartTag, Span: span.New(start, after), Name: nameSpan, Attrs: attrs, SelfClosing: selfClosing,
	}}, true, nil
}

func isTagNameByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '-'
}

// parseAttributes scans `name`, `name="value"`, `name='value'`, and bare
// `name` attributes from pos up to and including the closing ">" or "/>".
func (p *Parser) parseAttributes(pos int) ([]token.Attribute, int, bool, bool) {
	var attrs []token.Attribute
	i := pos
	for {
		for i < len(p.src) && isHSpace(p.src[i]) {
			i++
		}
		if i >= len(p.src) {
			return nil, 0, false, false
		}
		if p.src[i] == '/' && i+1 < len(p.src) && p.src[i+1] == '>' {
			return attrs, i + 2, true, true
		}
		if p.src[i] == '>' {
			return attrs, i + 1, false, true
		}
		nameStart := i
		for i < len(p.src) && isAttrNameByte(p.src[i]) {
			i++
		}
		if i == nameStart {
			return nil, 0, false, false
		}
		nameSpan := span.New(nameStart, i)

		for i < len(p.src) && isHSpace(p.src[i]) {
			i++
		}
		if i < len(p.src) && p.src[i] == '=' {
			i++
			for i < len(p.src) && isHSpace(p.src[i]) {
				i++
			}
			if i < len(p.src) && (p.src[i] == '"' || p.src[i] == '\'') {
				quote := p.src[i]
				i++
				valStart := i
				for i < len(p.src) && p.src[i] != quote {
					i++
				}
				if i >= len(p.src) {
					return nil, 0, false, false
				}
				attrs = append(attrs, token.Attribute{Name: nameSpan, Value: span.New(valStart, i), HasValue: true})
				i++
			} else {
				valStart := i
				for i < len(p.src) && !isHSpace(p.src[i]) && p.src[i] != '>' {
					i++
				}
				attrs = append(attrs, token.Attribute{Name: nameSpan, Value: span.New(valStart, i), HasValue: true})
			}
		} else {
			attrs = append(attrs, token.Attribute{Name: nameSpan})
		}
	}
}

func isAttrNameByte(b byte) bool {
	return b != '=' && b != '>' && b != '/' && !isHSpace(b) && b != 0
}
