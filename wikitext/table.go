package wikitext

import (
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/token"
)

// parseTable tokenises a MediaWiki pipe table, a line-oriented grammar
// unlike every other construct in this package. Table well-formedness
// (row/cell nesting, missing "|}") is left entirely to the emitter; this
// only classifies each line by its leading marker.
//
// Simplification: a cell's content is taken from its own line only; a
// cell whose text wraps onto a following plain line (legal in MediaWiki,
// rare in practice) is emitted as a separate run of content tokens rather
// than folded into the preceding cell.
func (p *Parser) parseTable() ([]token.Token, bool, error) {
	if !p.hasPrefix("{|") {
		return nil, false, nil
	}
	start := p.pos
	lineEnd := lineEndAt(p.src, start)
	attrs := p.parseTableAttrRange(start+2, lineEnd)

	out := []token.Token{{Kind: token.TableStart, Span: span.New(start, lineEnd), TableAttrs: attrs}}
	p.pos = advancePastNewline(p.src, lineEnd)

	for p.pos < len(p.src) {
		lineStart := p.pos
		end := lineEndAt(p.src, lineStart)
		line := p.src[lineStart:end]

		switch {
		case hasLinePrefix(line, "|}"):
			out = append(out, token.Token{Kind: token.TableEnd, Span: span.New(lineStart, end)})
			p.pos = advancePastNewline(p.src, end)
			return out, true, nil

		case hasLinePrefix(line, "|-"):
			rowAttrs := p.parseTableAttrRange(lineStart+2, end)
			out = append(out, token.Token{Kind: token.TableRow, Span: span.New(lineStart, end), TableAttrs: rowAttrs})

		case hasLinePrefix(line, "|+"):
			content, err := p.reparse(span.New(lineStart+2, end))
			if err != nil {
				return nil, false, err
			}
			out = append(out, token.Token{Kind: token.TableCaption, Span: span.New(lineStart, end), Content: content})

		case hasLinePrefix(line, "|"):
			toks, err := p.splitTableCells(lineStart+1, end, "||", token.TableData)
			if err != nil {
				return nil, false, err
			}
			out = append(out, toks...)

		case hasLinePrefix(line, "!"):
			toks, err := p.splitTableCells(lineStart+1, end, "!!", token.TableHeading)
			if err != nil {
				return nil, false, err
			}
			out = append(out, toks...)

		default:
			toks, err := p.reparse(span.New(lineStart, end))
			if err != nil {
				return nil, false, err
			}
			out = append(out, toks...)
		}
		p.pos = advancePastNewline(p.src, end)
	}
	return out, true, nil
}

func lineEndAt(src string, from int) int {
	i := from
	for i < len(src) && src[i] != '\n' {
		i++
	}
	return i
}

func advancePastNewline(src string, idx int) int {
	if idx < len(src) && src[idx] == '\n' {
		return idx + 1
	}
	return idx
}

func hasLinePrefix(line, prefix string) bool {
	return len(line) >= len(prefix) && line[:len(prefix)] == prefix
}

// splitTableCells splits the cell-row content [start,end) on sep
// ("||" or "!!") and, within each cell, on a single top-level "|"
// separating "attrs|content" from plain content.
func (p *Parser) splitTableCells(start, end int, sep string, kind token.Kind) ([]token.Token, error) {
	var out []token.Token
	for _, cell := range splitByTopLevelSep(p.src, span.New(start, end), sep) {
		var attrs []token.Attribute
		contentSpan := cell
		if bar := findTopLevelByte(p.src, cell, '|'); bar >= 0 {
			attrs = p.parseTableAttrRange(cell.Start, bar)
			contentSpan = span.New(bar+1, cell.End)
		}
		content, err := p.reparse(contentSpan)
		if err != nil {
			return nil, err
		}
		out = append(out, token.Token{Kind: kind, Span: cell, TableAttrs: attrs, Content: content})
	}
	return out, nil
}

// parseTableAttrRange parses whitespace-separated "name", "name=value",
// and "name=\"value\"" attribute pairs from p.src[start:end] (a table/row
// marker line's tail, not XML-delimited like tags.go's parseAttributes).
func (p *Parser) parseTableAttrRange(start, end int) []token.Attribute {
	var attrs []token.Attribute
	i := start
	for i < end {
		for i < end && isHSpace(p.src[i]) {
			i++
		}
		if i >= end {
			break
		}
		nameStart := i
		for i < end && isAttrNameByte(p.src[i]) {
			i++
		}
		if i == nameStart {
			i++
			continue
		}
		nameSpan := span.New(nameStart, i)
		for i < end && isHSpace(p.src[i]) {
			i++
		}
		if i < end && p.src[i] == '=' {
			i++
			for i < end && isHSpace(p.src[i]) {
				i++
			}
			if i < end && (p.src[i] == '"' || p.src[i] == '\'') {
				quote := p.src[i]
				i++
				valStart := i
				for i < end && p.src[i] != quote {
					i++
				}
				attrs = append(attrs, token.Attribute{Name: nameSpan, Value: span.New(valStart, i), HasValue: true})
				if i < end {
					i++
				}
			} else {
				valStart := i
				for i < end && !isHSpace(p.src[i]) {
					i++
				}
				attrs = append(attrs, token.Attribute{Name: nameSpan, Value: span.New(valStart, i), HasValue: true})
			}
		} else {
			attrs = append(attrs, token.Attribute{Name: nameSpan})
		}
	}
	return attrs
}
