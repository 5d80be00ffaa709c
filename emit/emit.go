// Package emit turns a fully expanded, re-parsed token stream into a
// well-formed HTML fragment. It keeps a stack of open nodes (paragraph
// state machines, HTML tags, list runs, attribute scopes), balances
// text styles, translates list bullets, converts typewriter quotes, and
// enforces the restricted-parent rules for tables and lists.
package emit

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/mwcore/wikirender/funcs"
	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/strip"
	"github.com/mwcore/wikirender/token"
	"github.com/mwcore/wikirender/wikiconf"
)

// buffer is an appendable, truncatable output; truncation is what lets
// category absorption strip back to the previous newline.
type buffer struct {
	b []byte
}

func (b *buffer) writeString(s string) { b.b = append(b.b, s...) }
func (b *buffer) writeRune(r rune)     { b.b = append(b.b, string(r)...) }
func (b *buffer) len() int             { return len(b.b) }
func (b *buffer) truncate(n int)       { b.b = b.b[:n] }
func (b *buffer) String() string       { return string(b.b) }

type nodeKind int

const (
	nodeGraf nodeKind = iota
	nodeTag
	nodeList
	nodeAttr
)

type grafState int

const (
	grafStart grafState = iota
	grafText
	grafBreak
	grafAfterBreak
)

type node struct {
	kind       nodeKind
	graf       grafState
	tag        string
	hasContent bool
	list       *listEmitter
}

// canParent reports whether this open node accepts a child with the
// given lowercase tag name.
func (n *node) canParent(tag string) bool {
	switch n.kind {
	case nodeGraf:
		return isPhrasing(tag)
	case nodeTag:
		if children, ok := parentRules[n.tag]; ok {
			return children[tag]
		}
		if isPhrasing(n.tag) {
			return isPhrasing(tag)
		}
		return true
	case nodeList:
		return len(n.list.stack) > 0
	}
	return false
}

func (n *node) close(b *buffer) {
	switch n.kind {
	case nodeGraf:
		if n.graf != grafAfterBreak {
			b.writeString("</p>")
		}
	case nodeTag:
		if !isVoid(n.tag) {
			b.writeString("</" + n.tag + ">")
		}
	case nodeList:
		n.list.finish(b)
	}
}

// Emitter renders one expanded document.
type Emitter struct {
	cfg      *wikiconf.Config
	store    store.Store
	state    *rstate.State
	registry *funcs.Registry
	eval     funcs.Expander
	ctx      context.Context

	// frame is the root frame whose Source the token spans index.
	frame *rstate.StackFrame

	html      buffer
	stack     []*node
	lastChar  rune
	fragment  bool
	seenBlock bool
	style     styleState
	inInclude []token.InclusionMode

	// pendingSourceClass carries a source-scope marker's key until the
	// next block element can absorb it as a data attribute.
	pendingSourceClass string
}

// New builds an emitter for one render. registry and eval may be nil
// when no extension tags can appear in the stream (tests, fragments).
func New(ctx context.Context, cfg *wikiconf.Config, st store.Store, state *rstate.State, registry *funcs.Registry, eval funcs.Expander, frame *rstate.StackFrame) *Emitter {
	return &Emitter{
		cfg:      cfg,
		store:    st,
		state:    state,
		registry: registry,
		eval:     eval,
		ctx:      ctx,
		frame:    frame,
		lastChar: ' ',
	}
}

// Render emits toks and returns the final HTML fragment.
func (e *Emitter) Render(toks []token.Token) (string, error) {
	if err := e.adoptTokens(toks); err != nil {
		return "", err
	}
	e.style.finish(&e.html)
	for i := len(e.stack) - 1; i >= 0; i-- {
		e.stack[i].close(&e.html)
	}
	e.stack = nil
	return e.html.String(), nil
}

func (e *Emitter) src(t *token.Token) string {
	return t.Span.Slice(e.frame.Source)
}

func (e *Emitter) top() *node {
	if len(e.stack) == 0 {
		return nil
	}
	return e.stack[len(e.stack)-1]
}

func (e *Emitter) pop() *node {
	n := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return n
}

func (e *Emitter) inAttr() bool {
	for i := len(e.stack) - 1; i >= 0; i-- {
		if e.stack[i].kind == nodeAttr {
			return true
		}
	}
	return false
}

func (e *Emitter) inCode() bool {
	if e.inAttr() {
		return true
	}
	for i := len(e.stack) - 1; i >= 0; i-- {
		if e.stack[i].kind == nodeTag && isCodeTag(e.stack[i].tag) {
			return true
		}
	}
	return false
}

// needsGraf reports whether phrasing content at the current position
// must open a paragraph.
func (e *Emitter) needsGraf() bool {
	parent := e.top()
	if parent == nil {
		return !e.fragment
	}
	return parent.kind == nodeTag && parent.hasContent && !isPhrasing(parent.tag)
}

// expectGraf prepares the stack for phrasing content.
func (e *Emitter) expectGraf() {
	if top := e.top(); top != nil && top.kind == nodeGraf {
		switch top.graf {
		case grafAfterBreak:
			e.html.writeString("<p>")
			top.graf = grafText
		case grafStart, grafBreak:
			top.graf = grafText
		}
		return
	}
	if e.needsGraf() {
		e.html.writeString("<p>")
		e.stack = append(e.stack, &node{kind: nodeGraf, graf: grafText})
	}
}

// finishLine applies the paragraph state machine's newline transition.
func (e *Emitter) finishLine() {
	e.style.finish(&e.html)
	if top := e.top(); top != nil && top.kind == nodeGraf {
		switch top.graf {
		case grafStart:
			e.html.writeString("<br>")
			top.graf = grafBreak
		case grafText:
			top.graf = grafBreak
		case grafBreak:
			e.html.writeString("</p>\n")
			top.graf = grafAfterBreak
		case grafAfterBreak:
			e.html.writeString("<p><br>")
			top.graf = grafBreak
		}
	}
	e.lastChar = '\n'
}

// popUntilParent closes open nodes until the top can parent tag.
func (e *Emitter) popUntilParent(tag string) {
	for {
		top := e.top()
		if top == nil || top.canParent(tag) {
			return
		}
		// A table or tr parent fosters unknown content out instead of
		// being force-closed, unless the incoming tag restructures the
		// table itself.
		if top.kind == nodeTag && (top.tag == "table" || top.tag == "tr") && top.tag != tag {
			return
		}
		e.pop().close(&e.html)
	}
}

// startTag opens an element, enforcing parent rules.
func (e *Emitter) startTag(tag string, attrs []token.Attribute, literalAttrs string) {
	tag = strings.ToLower(tag)
	e.popUntilParent(tag)

	if isPhrasing(tag) {
		e.expectGraf()
	} else {
		e.seenBlock = true
		e.lastChar = ' '
		if top := e.top(); top != nil && top.kind == nodeTag {
			top.hasContent = true
		}
	}

	e.html.writeString("<" + tag)
	for _, at := range attrs {
		name := at.Name.Slice(e.frame.Source)
		e.html.writeString(" " + name)
		if at.HasValue {
			value := at.Value.Slice(e.frame.Source)
			e.html.writeString(`="` + strings.ReplaceAll(value, `"`, "&quot;") + `"`)
		}
	}
	if literalAttrs != "" {
		e.html.writeString(literalAttrs)
	}
	if e.pendingSourceClass != "" && !isPhrasing(tag) {
		e.html.writeString(` data-wiki-source="` + e.pendingSourceClass + `"`)
		e.pendingSourceClass = ""
	}
	e.html.writeString(">")

	if !isVoid(tag) {
		e.stack = append(e.stack, &node{kind: nodeTag, tag: tag})
	}
}

// endTag closes the nearest matching open element, closing everything
// opened after it.
func (e *Emitter) endTag(tag string) {
	tag = strings.ToLower(tag)
	if isVoid(tag) {
		return
	}
	if !isPhrasing(tag) {
		e.lastChar = ' '
	}
	for i := len(e.stack) - 1; i >= 0; i-- {
		if e.stack[i].kind == nodeTag && e.stack[i].tag == tag {
			for j := len(e.stack) - 1; j >= i; j-- {
				e.stack[j].close(&e.html)
			}
			e.stack = e.stack[:i]
			return
		}
	}
	// No matching open tag: emit the close anyway and let the HTML5
	// parser's recovery sort it out.
	e.html.writeString("</" + tag + ">")
}

// textRun writes escaped text with typographic quote conversion.
func (e *Emitter) textRun(text string) {
	e.expectGraf()

	inCode := e.inCode()
	inAttr := e.inAttr()
	prev := e.lastChar
	runes := []rune(text)
	for i, c := range runes {
		var next rune
		hasNext := i+1 < len(runes)
		if hasNext {
			next = runes[i+1]
		}
		switch {
		case c == '"' && !inCode:
			if isQuoteBreak(prev, next, hasNext) {
				e.html.writeRune('“')
			} else {
				e.html.writeRune('”')
			}
		case c == '\'' && !inCode:
			if isQuoteBreak(prev, next, hasNext) {
				e.html.writeRune('‘')
			} else {
				e.html.writeRune('’')
			}
		case c == '<':
			e.html.writeString("&lt;")
		case c == '>':
			e.html.writeString("&gt;")
		case c == '&':
			e.html.writeString("&amp;")
		default:
			e.html.writeRune(c)
		}
		prev = c
	}
	if !inAttr && len(runes) > 0 {
		e.lastChar = prev
	}
}

// isQuoteBreak decides the opening quote form: the previous character
// is whitespace or opening/initial punctuation and the next character
// is not whitespace.
func isQuoteBreak(prev, next rune, hasNext bool) bool {
	if unicode.IsSpace(prev) || unicode.In(prev, unicode.Ps, unicode.Pi) {
		return !hasNext || !unicode.IsSpace(next)
	}
	return false
}

func (e *Emitter) adoptTokens(toks []token.Token) error {
	for i := range toks {
		if err := e.adoptToken(&toks[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) adoptToken(t *token.Token) error {
	if t.Kind != token.StartInclude && t.Kind != token.EndInclude &&
		len(e.inInclude) > 0 && e.inInclude[len(e.inInclude)-1] == token.IncludeOnly {
		return nil
	}

	switch t.Kind {
	case token.Text:
		e.textRun(e.src(t))

	case token.Generated:
		e.textRun(t.Text)

	case token.NewLine:
		switch top := e.top(); {
		case top == nil || top.kind == nodeAttr:
		case top.kind == nodeList:
			e.pop().close(&e.html)
		default:
			e.finishLine()
		}

	case token.Entity:
		e.expectGraf()
		switch t.Decoded {
		case '<':
			e.html.writeString("&lt;")
		case '>':
			e.html.writeString("&gt;")
		case '&':
			e.html.writeString("&amp;")
		case '"':
			e.html.writeString("&quot;")
		default:
			e.html.writeRune(t.Decoded)
		}
		if !e.inAttr() {
			e.lastChar = t.Decoded
		}

	case token.Comment:

	case token.HorizontalRule:
		e.startTag("hr", nil, "")

	case token.Heading:
		e.emitHeading(t)

	case token.ListItem:
		if err := e.emitListItem(t); err != nil {
			return err
		}

	case token.TextStyleTok:
		e.expectGraf()
		e.style.emit(&e.html, t.Style)

	case token.Link:
		if err := e.renderWikilink(t); err != nil {
			return err
		}

	case token.Redirect:

	case token.ExternalLink, token.Autolink:
		if err := e.renderExternalLink(t); err != nil {
			return err
		}

	case token.BehaviorSwitch:

	case token.StartTag:
		name := strings.ToLower(t.Name.Slice(e.frame.Source))
		if e.inAttr() {
			e.textRun(e.src(t))
			return nil
		}
		e.startTag(name, t.Attrs, "")
		if t.SelfClosing {
			e.endTag(name)
		}

	case token.EndTag:
		if e.inAttr() {
			e.textRun(e.src(t))
			return nil
		}
		e.endTag(t.Name.Slice(e.frame.Source))

	case token.Extension:
		return e.emitExtension(t)

	case token.StartAnnotation, token.EndAnnotation:

	case token.StartInclude:
		e.inInclude = append(e.inInclude, t.Mode)

	case token.EndInclude:
		if n := len(e.inInclude); n > 0 && e.inInclude[n-1] == t.Mode {
			e.inInclude = e.inInclude[:n-1]
		}

	case token.Template, token.Parameter:
		// Leftovers that survived expansion render as literal text.
		e.textRun(e.src(t))

	case token.TableStart:
		e.startTag("table", t.TableAttrs, "")

	case token.TableEnd:
		e.endTag("table")

	case token.TableRow:
		e.startTag("tr", t.TableAttrs, "")

	case token.TableData:
		return e.emitCell("td", t)

	case token.TableHeading:
		return e.emitCell("th", t)

	case token.TableCaption:
		e.startTag("caption", t.TableAttrs, "")
		if err := e.adoptTokens(t.Content); err != nil {
			return err
		}
		e.endTag("caption")

	case token.LangVariant:
		// Variant selection is a frontend concern; the first variant's
		// text is the neutral rendering.
		if len(t.Variants) > 0 {
			return e.adoptTokens(t.Variants[0].Text)
		}

	case token.StripMarker:
		return e.emitStripMarker(t.MarkerIndex)
	}
	return nil
}

func (e *Emitter) emitCell(tag string, t *token.Token) error {
	if top := e.top(); top == nil || top.kind != nodeTag || top.tag != "tr" {
		e.startTag("tr", nil, "")
	}
	e.startTag(tag, t.TableAttrs, "")
	if err := e.adoptTokens(t.Content); err != nil {
		return err
	}
	e.endTag(tag)
	return nil
}

func (e *Emitter) emitHeading(t *token.Token) {
	text := plainText(e.frame.Source, t.Content)
	id := e.state.NextHeadingID(funcs.AnchorEncode(strings.TrimSpace(text)))
	e.state.Outline = append(e.state.Outline, rstate.OutlineEntry{
		Level: t.Level,
		Text:  strings.TrimSpace(text),
		ID:    id,
	})

	tag := "h" + strconv.Itoa(t.Level)
	e.startTag(tag, nil, ` id="`+id+`"`)
	if err := e.adoptTokens(t.Content); err == nil {
		e.endTag(tag)
	}
}

func (e *Emitter) emitListItem(t *token.Token) error {
	bullets := t.Bullets.Slice(e.frame.Source)

	if top := e.top(); top != nil && top.kind == nodeList {
		top.list.emit(&e.html, bullets)
	} else {
		e.popUntilParent("ol")
		le := &listEmitter{}
		le.emit(&e.html, bullets)
		e.stack = append(e.stack, &node{kind: nodeList, list: le})
	}

	listIndex := len(e.stack) - 1
	if err := e.adoptTokens(t.Content); err != nil {
		return err
	}

	// Content can implicitly terminate the list itself; only unwind to
	// the list node when it is still there.
	if len(e.stack) > listIndex && e.stack[listIndex].kind == nodeList {
		for len(e.stack) > listIndex+1 {
			e.pop().close(&e.html)
		}
		e.finishLine()
	}
	return nil
}

func (e *Emitter) emitExtension(t *token.Token) error {
	name := t.Name.Slice(e.frame.Source)
	if e.registry == nil {
		e.textRun(e.src(t))
		return nil
	}
	ea := funcs.ExtensionArgs{
		Name:    name,
		Attrs:   t.Attrs,
		Source:  e.frame.Source,
		Span:    t.Span,
		HasSpan: true,
		Frame:   e.frame,
		State:   e.state,
		Config:  e.cfg,
		Eval:    e.eval,
		Store:   e.store,
		Context: e.ctx,
	}
	if t.HasExtContent {
		ea.Body = t.ExtContent.Slice(e.frame.Source)
		ea.HasBody = true
	}
	mode, html, found, err := e.registry.CallTag(ea)
	if !found {
		e.textRun(e.src(t))
		return nil
	}
	if err != nil {
		return &rstate.ExtensionError{Name: name, Inner: err}
	}
	switch mode {
	case funcs.ModeBlock:
		e.insertBlock(html)
	case funcs.ModeInline, funcs.ModeRaw:
		e.expectGraf()
		e.html.writeString(html)
	case funcs.ModeNowiki:
		e.expectGraf()
		e.html.writeString(html)
	}
	return nil
}

func (e *Emitter) insertBlock(html string) {
	e.popUntilParent("div")
	e.seenBlock = true
	e.html.writeString(e.resolveMarkers(html))
	e.lastChar = ' '
}

// resolveMarkers replaces any marker sentinels nested inside
// already-resolved content (a <ref> body that embedded another
// extension's output, for example). Markers only ever reference earlier
// markers, so the recursion terminates.
func (e *Emitter) resolveMarkers(s string) string {
	if !strings.Contains(s, "\x7f") {
		return s
	}
	return e.state.Strip.Resolve(s, func(m strip.Marker) string {
		switch m.Kind {
		case strip.WikiRsSourceStart, strip.WikiRsSourceEnd:
			return ""
		default:
			return e.resolveMarkers(m.Content)
		}
	})
}

func (e *Emitter) emitStripMarker(idx int) error {
	m, ok := e.state.Strip.Get(idx)
	if !ok {
		return &rstate.StripMarkerError{Index: idx}
	}
	switch m.Kind {
	case strip.Inline, strip.NoWiki:
		e.expectGraf()
		e.html.writeString(e.resolveMarkers(m.Content))
	case strip.Block:
		e.insertBlock(m.Content)
	case strip.WikiRsSourceStart:
		e.pendingSourceClass = m.Content
	case strip.WikiRsSourceEnd:
		e.pendingSourceClass = ""
	}
	return nil
}

// plainText flattens a token run to its literal source text, used for
// heading anchors.
func plainText(source string, toks []token.Token) string {
	var b strings.Builder
	for _, t := range toks {
		switch t.Kind {
		case token.Generated:
			b.WriteString(t.Text)
		case token.Heading, token.ListItem:
			b.WriteString(plainText(source, t.Content))
		case token.Link:
			if len(t.Args) > 0 {
				b.WriteString(plainText(source, t.Args[0].Content))
			} else {
				b.WriteString(plainText(source, t.Target))
			}
		case token.TextStyleTok, token.Comment:
		default:
			b.WriteString(t.Span.Slice(source))
		}
	}
	return b.String()
}
