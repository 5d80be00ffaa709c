// Package expand walks a parsed wikitext token tree and produces a
// wikitext string with templates and parser functions expanded,
// parameters substituted, inclusion control enforced, and extension tags
// replaced by strip markers. Its output is fed back through the parser
// before HTML emission, so everything it writes must survive a reparse.
package expand

import (
	"context"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mwcore/wikirender/funcs"
	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/strip"
	"github.com/mwcore/wikirender/token"
	"github.com/mwcore/wikirender/wikiconf"
	"github.com/mwcore/wikirender/wikitext"
)

// Mode selects how a walk treats inclusion control and extension tags.
type Mode int

const (
	// Normal expands the root document: noinclude content is kept,
	// includeonly content dropped.
	Normal Mode = iota
	// Include expands a transcluded template body: the reverse.
	Include
	// Strip behaves like Include but is used for nested evaluation
	// contexts (argument values, parser-function arguments) where an
	// extension tag might never reach the root output and so must be
	// deferred into a strip marker.
	Strip
)

// LoadMode gates whether modules and parameter substitution run at all.
type LoadMode int

const (
	// LoadBase short-circuits templates, parameters, and modules into a
	// "Run scripts" placeholder linking back to the scripted mode.
	LoadBase LoadMode = iota
	// LoadModule runs the full pipeline.
	LoadModule
)

// Evaluator is the per-render template expansion engine. It implements
// funcs.Expander so parser-function and extension-tag handlers can
// evaluate their arguments eagerly.
type Evaluator struct {
	Cfg       *wikiconf.Config
	Store     store.Store
	Registry  *funcs.Registry
	State     *rstate.State
	Templates *store.TemplateCache
	LoadMode  LoadMode
	Modules   funcs.ModuleInvoker
	Log       *slog.Logger

	ctx context.Context

	// lastExpansion remembers the previous expansion of each tacky
	// template within this render so repeat transclusions can be
	// recognised as unchanged.
	lastExpansion map[string]string
}

// NewEvaluator wires an Evaluator for one render.
func NewEvaluator(ctx context.Context, cfg *wikiconf.Config, st store.Store, reg *funcs.Registry, state *rstate.State, tc *store.TemplateCache, mode LoadMode) *Evaluator {
	return &Evaluator{
		Cfg:           cfg,
		Store:         st,
		Registry:      reg,
		State:         state,
		Templates:     tc,
		LoadMode:      mode,
		Log:           slog.Default(),
		ctx:           ctx,
		lastExpansion: make(map[string]string),
	}
}

// Context returns the render's context, used by handlers that reach the
// article store.
func (ev *Evaluator) Context() context.Context {
	if ev.ctx == nil {
		return context.Background()
	}
	return ev.ctx
}

// ExpandDocument expands a parsed article or extension-tag body in
// Normal mode.
func (ev *Evaluator) ExpandDocument(doc wikitext.Result, frame *rstate.StackFrame) (string, error) {
	return ev.run(doc.Tokens, frame, Normal, doc.HasOnlyInclude)
}

// ExpandBody expands a parsed template body in Include mode.
func (ev *Evaluator) ExpandBody(doc wikitext.Result, frame *rstate.StackFrame) (string, error) {
	return ev.run(doc.Tokens, frame, Include, doc.HasOnlyInclude)
}

// Expand evaluates a token slice (an argument name or value) to wikitext
// text in frame's context. Extension tags are deferred to strip markers
// since the result may never reach the root output.
func (ev *Evaluator) Expand(toks []token.Token, frame *rstate.StackFrame) (string, error) {
	return ev.run(toks, frame, Strip, false)
}

// ExpandTemplateText parses and fully expands a string of raw wikitext
// in frame's context. Used by #tag bodies and module host calls.
func (ev *Evaluator) ExpandTemplateText(src string, frame *rstate.StackFrame) (string, error) {
	res, err := wikitext.Parse(ev.Cfg.Grammar, src, true)
	if err != nil {
		return "", err
	}
	shadow := frame.WithSource(src)
	return ev.run(res.Tokens, shadow, Strip, res.HasOnlyInclude)
}

func (ev *Evaluator) run(toks []token.Token, frame *rstate.StackFrame, mode Mode, hasOnlyInclude bool) (string, error) {
	w := &walker{ev: ev, frame: frame, mode: mode, hasOnlyInclude: hasOnlyInclude}
	if err := w.adoptTokens(toks); err != nil {
		return "", err
	}
	return w.out.String(), nil
}

// evalFunc adapts the evaluator into the argument cache's callback
// shape. Argument tokens always index the caller's source, so the
// evaluation frame is the caller.
func (ev *Evaluator) evalFunc(caller *rstate.StackFrame) rstate.EvalFunc {
	return func(toks []token.Token) string {
		s, err := ev.Expand(toks, caller)
		if err != nil {
			ev.Log.Warn("argument evaluation failed", "frame", caller.Title.FullText(), "err", err)
			return ""
		}
		return s
	}
}

// walker is the per-walk mutable state: an output buffer, the inclusion
// control stack, and the trailing byte used for line-start decisions.
type walker struct {
	ev             *Evaluator
	frame          *rstate.StackFrame
	mode           Mode
	inclusion      []token.InclusionMode
	hasOnlyInclude bool
	out            strings.Builder
	last           byte
}

func (w *walker) write(s string) {
	if s == "" {
		return
	}
	w.out.WriteString(s)
	w.last = s[len(s)-1]
}

func (w *walker) writeSrc(s span.Span) {
	w.write(s.Slice(w.frame.Source))
}

func (w *walker) atLineStart() bool {
	return w.out.Len() == 0 || w.last == '\n'
}

func (w *walker) inInclude() bool {
	return w.mode == Include || w.mode == Strip
}

func (w *walker) currentInclusion() (token.InclusionMode, bool) {
	if len(w.inclusion) == 0 {
		return 0, false
	}
	return w.inclusion[len(w.inclusion)-1], true
}

// shouldSkip applies the inclusion-control skip rule to one content
// token. StartInclude/EndInclude themselves always reach the walker so
// the inclusion stack stays consistent.
func (w *walker) shouldSkip() bool {
	cur, has := w.currentInclusion()
	if w.inInclude() {
		if has && cur == token.NoInclude {
			return true
		}
		// A document with an <onlyinclude> anywhere contributes nothing
		// outside its onlyinclude sections when transcluded.
		if !has && w.hasOnlyInclude {
			return true
		}
		return false
	}
	return has && (cur == token.IncludeOnly || cur == token.OnlyInclude)
}

// adoptTokens walks a run of sibling tokens, re-emitting the source
// bytes between consecutive spans. The table grammar consumes its
// structural bytes (cell markers, separators, line breaks) without
// tokenising them, and those must survive into the reparsed output.
func (w *walker) adoptTokens(toks []token.Token) error {
	prevEnd := -1
	for i := range toks {
		t := &toks[i]
		real := t.Span.End > t.Span.Start
		if real && prevEnd >= 0 && t.Span.Start > prevEnd {
			w.writeSrc(span.New(prevEnd, t.Span.Start))
		}
		if err := w.adoptToken(t); err != nil {
			return err
		}
		if real {
			prevEnd = t.Span.End
		}
	}
	return nil
}

func (w *walker) adoptToken(t *token.Token) error {
	if t.Kind != token.StartInclude && t.Kind != token.EndInclude && w.shouldSkip() {
		return nil
	}
	if err := w.adoptInner(t); err != nil {
		if _, ok := err.(*rstate.NodeError); ok {
			return err
		}
		fm := span.NewFileMap(w.frame.Source)
		return &rstate.NodeError{
			Frame: w.frame.Title.FullText(),
			Pos:   fm.Position(t.Span.Start),
			Inner: err,
		}
	}
	return nil
}

func (w *walker) adoptInner(t *token.Token) error {
	switch t.Kind {
	case token.Text, token.NewLine, token.Entity, token.HorizontalRule,
		token.BehaviorSwitch, token.EndTag, token.Redirect, token.TextStyleTok,
		token.TableEnd, token.StartAnnotation, token.EndAnnotation,
		token.LangVariant, token.Autolink, token.StartTag:
		w.writeSrc(t.Span)

	case token.Comment:
		// Comments never survive expansion.

	case token.Generated:
		w.write(t.Text)

	case token.StripMarker:
		// Reintroducing stripped content here would let it be reparsed
		// as wikitext, so the sentinel is carried through verbatim.
		w.write(strip.Sentinel(t.MarkerIndex))

	case token.StartInclude:
		w.inclusion = append(w.inclusion, t.Mode)

	case token.EndInclude:
		if cur, has := w.currentInclusion(); has && cur == t.Mode {
			w.inclusion = w.inclusion[:len(w.inclusion)-1]
		}

	case token.Heading, token.ListItem:
		return w.adoptWrapped(t.Span, t.Content)

	case token.TableStart, token.TableRow:
		w.writeSrc(t.Span)

	case token.TableData, token.TableHeading, token.TableCaption:
		return w.adoptWrapped(t.Span, t.Content)

	case token.Link, token.ExternalLink:
		return w.adoptLinkLike(t)

	case token.Extension:
		return w.adoptExtension(t)

	case token.Template:
		return w.renderTemplate(t)

	case token.Parameter:
		return w.renderParameter(t)

	default:
		w.writeSrc(t.Span)
	}
	return nil
}

// adoptWrapped re-emits a token whose shape is {prefix}{content}{suffix}
// with only the content expanded.
func (w *walker) adoptWrapped(outer span.Span, content []token.Token) error {
	if len(content) == 0 {
		w.writeSrc(outer)
		return nil
	}
	inner := token.CoverSpan(content)
	w.writeSrc(span.New(outer.Start, inner.Start))
	if err := w.adoptTokens(content); err != nil {
		return err
	}
	w.writeSrc(span.New(inner.End, outer.End))
	return nil
}

// adoptLinkLike re-emits a wikilink or external link, expanding the
// target and each display argument in place. Token runs produced by the
// parser are byte-contiguous, so the gaps written between parts are the
// original separators.
func (w *walker) adoptLinkLike(t *token.Token) error {
	cursor := t.Span.Start
	if len(t.Target) > 0 {
		ts := token.CoverSpan(t.Target)
		w.writeSrc(span.New(cursor, ts.Start))
		if err := w.adoptTokens(t.Target); err != nil {
			return err
		}
		cursor = ts.End
	}
	for _, a := range t.Args {
		w.writeSrc(span.New(cursor, a.Span.Start))
		if err := w.adoptTokens(a.Content); err != nil {
			return err
		}
		cursor = a.Span.End
	}
	w.writeSrc(span.New(cursor, t.Span.End))
	return nil
}

// adoptExtension dispatches an extension tag and replaces it with a
// strip marker (or, for Raw mode, its literal output).
func (w *walker) adoptExtension(t *token.Token) error {
	name := t.Name.Slice(w.frame.Source)
	ea := funcs.ExtensionArgs{
		Name:    name,
		Attrs:   t.Attrs,
		Source:  w.frame.Source,
		Span:    t.Span,
		HasSpan: true,
		Frame:   w.frame,
		State:   w.ev.State,
		Config:  w.ev.Cfg,
		Eval:    w.ev,
		Modules: w.ev.Modules,
		Store:   w.ev.Store,
		Context: w.ev.Context(),
	}
	if t.HasExtContent {
		ea.Body = t.ExtContent.Slice(w.frame.Source)
		ea.HasBody = true
	}

	mode, html, found, err := w.ev.Registry.CallTag(ea)
	if !found {
		w.writeSrc(t.Span)
		return nil
	}
	if err != nil {
		ext := &rstate.ExtensionError{Name: name, Inner: err}
		w.ev.Log.Error("extension tag failed", "tag", name, "err", err)
		w.write(w.ev.State.Strip.Insert(strip.Inline, errorSpan(rstate.RootCause(ext))))
		return nil
	}
	w.writeMode(mode, html)
	return nil
}

func (w *walker) writeMode(mode funcs.OutputMode, html string) {
	switch mode {
	case funcs.ModeBlock:
		w.write(w.ev.State.Strip.Insert(strip.Block, html))
	case funcs.ModeInline:
		w.write(w.ev.State.Strip.Insert(strip.Inline, html))
	case funcs.ModeNowiki:
		w.write(w.ev.State.Strip.Insert(strip.NoWiki, html))
	case funcs.ModeEmpty:
	case funcs.ModeRaw:
		w.write(html)
	}
}

var errPolicy = bluemonday.StrictPolicy()

func errorSpan(err error) string {
	return `<span class="error">` + errPolicy.Sanitize(err.Error()) + `</span>`
}
