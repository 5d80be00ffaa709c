// Package token defines the tagged-variant token tree produced by the
// wikitext parser and consumed by the template expander and HTML emitter.
package token

import "github.com/mwcore/wikirender/span"

// Kind tags a Token's variant.
type Kind int

const (
	Text Kind = iota
	NewLine
	Entity
	Comment
	HorizontalRule
	Heading
	ListItem
	TextStyleTok
	Link
	Redirect
	ExternalLink
	Autolink
	BehaviorSwitch
	StartTag
	EndTag
	Extension
	StartAnnotation
	EndAnnotation
	StartInclude
	EndInclude
	Template
	Parameter
	TableStart
	TableEnd
	TableRow
	TableData
	TableHeading
	TableCaption
	LangVariant
	StripMarker
	Generated
)

// BoldPosition disambiguates a bold/italic quote run by its surrounding
// context; balancing itself is deferred to the emitter.
type BoldPosition int

const (
	Normal BoldPosition = iota
	Orphan
	Space
)

// TextStyleKind distinguishes '' / ''' / ''''' quote runs.
type TextStyleKind int

const (
	Italic TextStyleKind = iota
	Bold
	BoldItalic
)

// InclusionMode is the mode carried by a StartInclude/EndInclude token.
type InclusionMode int

const (
	NoInclude InclusionMode = iota
	IncludeOnly
	OnlyInclude
)

// Attribute is an HTML/extension-tag attribute: name plus either a
// literal value span or, for extension tags whose attributes may
// themselves contain wikitext, a raw value span to be evaluated lazily.
type Attribute struct {
	Name  span.Span
	Value span.Span
	// HasValue distinguishes `attr` from `attr=""`.
	HasValue bool
}

// Argument is a template/extension-tag call argument. Delimiter/Terminator
// index into Content when present; Content holds tokens from the raw
// `name=value` or scalar `value` source, and Value()/NameTokens() slice it.
//
// Delimiter is the index (within Content) of the `=` boundary token;
// Terminator is the index of the token just past the value (normally
// len(Content)).
type Argument struct {
	Content    []Token
	Delimiter  int // -1 if no name=value split
	Terminator int // -1 if equal to len(Content)
	Span       span.Span
}

// HasName reports whether this argument used `name=value` syntax.
func (a Argument) HasName() bool {
	return a.Delimiter >= 0
}

// NameTokens returns the tokens before the delimiter, or nil if unnamed.
func (a Argument) NameTokens() []Token {
	if a.Delimiter < 0 {
		return nil
	}
	return a.Content[:a.Delimiter]
}

// ValueTokens returns the tokens making up the argument's value.
func (a Argument) ValueTokens() []Token {
	start := 0
	if a.Delimiter >= 0 {
		start = a.Delimiter + 1
	}
	end := len(a.Content)
	if a.Terminator >= 0 {
		end = a.Terminator
	}
	return a.Content[start:end]
}

// Token is a tagged-variant parse tree node. Only the fields relevant
// to Kind are populated; unused fields stay zero.
type Token struct {
	Kind Kind
	Span span.Span

	// Entity
	Decoded rune

	// Comment
	Unclosed bool

	// HorizontalRule
	HasTrailingContent bool

	// Heading
	Level   int
	Content []Token

	// ListItem
	Bullets span.Span

	// TextStyleTok
	Style    TextStyleKind
	Position BoldPosition

	// Link / Redirect / ExternalLink / Autolink / Template
	Target []Token
	Args   []Argument
	Trail  span.Span
	HasTrail bool

	// BehaviorSwitch / StartTag / EndTag / Extension / StartAnnotation / EndAnnotation
	Name          span.Span
	Attrs         []Attribute
	SelfClosing   bool
	ExtContent    span.Span
	HasExtContent bool
	AnnoStatic    string
	AnnoHasStatic bool

	// StartInclude / EndInclude
	Mode InclusionMode

	// Parameter
	Default    []Token
	HasDefault bool

	// Table*
	TableAttrs []Attribute

	// LangVariant
	Flags       []Token
	HasFlags    bool
	Variants    []LangVariantOption
	RawFlag     string
	HasRawFlag  bool

	// StripMarker
	MarkerIndex int

	// Generated
	Text string
}

// LangVariantOption is one `lang:text` pair inside a -{...}- construct.
type LangVariantOption struct {
	Lang    string
	HasLang bool
	Text    []Token
}

// GeneratedArgument builds an argument from already-evaluated strings,
// used when a script or host call supplies arguments with no source
// location. An empty name produces a positional argument.
func GeneratedArgument(name, value string) Argument {
	if name == "" {
		return Argument{
			Content:    []Token{{Kind: Generated, Text: value}},
			Delimiter:  -1,
			Terminator: -1,
		}
	}
	return Argument{
		Content: []Token{
			{Kind: Generated, Text: name},
			{Kind: Generated, Text: "="},
			{Kind: Generated, Text: value},
		},
		Delimiter:  1,
		Terminator: -1,
	}
}

// CoverSpan returns the smallest span covering every token in toks, or
// the zero Span if toks is empty.
func CoverSpan(toks []Token) span.Span {
	if len(toks) == 0 {
		return span.Span{}
	}
	s := toks[0].Span
	for _, t := range toks[1:] {
		s = s.Cover(t.Span)
	}
	return s
}
