package emit

import "github.com/mwcore/wikirender/token"

// styleState is the text-style balancing automaton. It tracks which of
// b/i are open and in what order; each incoming quote run toggles the
// matching tags. Ill-nested output is deliberate; the HTML5 adoption
// agency rules repair it, and emitting eagerly avoids buffering.
type styleState int

const (
	styleNone styleState = iota
	styleB
	styleI
	styleBI // italic nested in bold
	styleIB // bold nested in italic
)

func (s *styleState) emit(b *buffer, kind token.TextStyleKind) {
	switch kind {
	case token.Bold:
		// Toggle b regardless of nesting; the adoption agency repairs
		// any overlap.
		switch *s {
		case styleNone:
			b.writeString("<b>")
			*s = styleB
		case styleB:
			b.writeString("</b>")
			*s = styleNone
		case styleI:
			b.writeString("<b>")
			*s = styleIB
		case styleBI, styleIB:
			b.writeString("</b>")
			*s = styleI
		}
	case token.Italic:
		switch *s {
		case styleNone:
			b.writeString("<i>")
			*s = styleI
		case styleI:
			b.writeString("</i>")
			*s = styleNone
		case styleB:
			b.writeString("<i>")
			*s = styleBI
		case styleBI, styleIB:
			b.writeString("</i>")
			*s = styleB
		}
	case token.BoldItalic:
		switch *s {
		case styleNone:
			b.writeString("<b><i>")
			*s = styleBI
		case styleB:
			b.writeString("</b><i>")
			*s = styleI
		case styleI:
			b.writeString("</i><b>")
			*s = styleB
		case styleBI:
			b.writeString("</i></b>")
			*s = styleNone
		case styleIB:
			b.writeString("</b></i>")
			*s = styleNone
		}
	}
}

// finish closes any open style at a line or block boundary.
func (s *styleState) finish(b *buffer) {
	switch *s {
	case styleB:
		b.writeString("</b>")
	case styleI:
		b.writeString("</i>")
	case styleBI:
		b.writeString("</i></b>")
	case styleIB:
		b.writeString("</b></i>")
	}
	*s = styleNone
}
