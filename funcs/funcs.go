// Package funcs implements the parser-function and extension-tag
// dispatch registries: fixed, case-folded-name-keyed tables mapping
// MediaWiki-style names to handlers that the template expander invokes
// while walking a token tree. Parser functions and extension tags stay
// in separate tables because they are dispatched from different grammar
// positions ({{#name:...}} vs <name>...</name>).
package funcs

import (
	"context"
	"strings"

	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/span"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/token"
	"github.com/mwcore/wikirender/wikiconf"
)

// Expander is the narrow slice of the template expander that parser
// functions/extension handlers need for eager argument evaluation. Kept as
// an interface here, implemented by expand.Evaluator, so that funcs never
// imports expand (which imports funcs to dispatch), breaking what would
// otherwise be an import cycle.
type Expander interface {
	// Expand evaluates toks to wikitext text in frame's context.
	Expand(toks []token.Token, frame *rstate.StackFrame) (string, error)
	// ExpandTemplateText fully expands a string of raw wikitext (used by
	// #tag and module Preprocess/ExpandTemplate host calls).
	ExpandTemplateText(src string, frame *rstate.StackFrame) (string, error)
}

// ModuleInvoker runs a function from a scripted module article. The
// expander and the #invoke handler see only this interface so the module
// host can live in its own package.
type ModuleInvoker interface {
	Invoke(st *rstate.State, frame *rstate.StackFrame, module, fn string, args []token.Argument) (string, error)
}

// IndexedArgs is the argument bundle passed to a parser-function
// handler: the case-folded callee, the raw caller arguments, and the
// invoking frame.
type IndexedArgs struct {
	Callee  string
	Raw     []token.Argument
	Frame   *rstate.StackFrame
	Span    span.Span
	HasSpan bool

	State   *rstate.State
	Config  *wikiconf.Config
	Eval    Expander
	Modules ModuleInvoker
	Store   store.Store
	Context context.Context
}

// Arg returns the evaluated text of the i'th raw argument (1-indexed).
// A parser-function argument is positional regardless of any `name=value`
// syntax inside it, so the whole segment is evaluated, `=` included.
func (a IndexedArgs) Arg(i int) string {
	if i < 1 || i > len(a.Raw) {
		return ""
	}
	text, _ := a.Eval.Expand(a.Raw[i-1].Content, a.Frame)
	return text
}

// TrimmedArg returns Arg(i) with ASCII whitespace trimmed, the form most
// control-flow functions compare against.
func (a IndexedArgs) TrimmedArg(i int) string {
	return strings.TrimSpace(a.Arg(i))
}

// NamedArg splits the i'th argument on its `name=value` boundary,
// returning ok=false when the argument has no name. Used by handlers
// like #tag that accept attribute-style arguments.
func (a IndexedArgs) NamedArg(i int) (name, value string, ok bool) {
	if i < 1 || i > len(a.Raw) {
		return "", "", false
	}
	arg := a.Raw[i-1]
	if !arg.HasName() {
		return "", "", false
	}
	n, _ := a.Eval.Expand(arg.NameTokens(), a.Frame)
	v, _ := a.Eval.Expand(arg.ValueTokens(), a.Frame)
	return strings.TrimSpace(n), strings.TrimSpace(v), true
}

// RawArgCount returns how many arguments were supplied.
func (a IndexedArgs) RawArgCount() int { return len(a.Raw) }

// ParserFunctionHandler implements one `{{#name:...}}` or magic-word
// variable call.
type ParserFunctionHandler func(a IndexedArgs) (string, error)

// OutputMode is an extension-tag handler's result-wrapping instruction.
type OutputMode int

const (
	ModeBlock OutputMode = iota
	ModeInline
	ModeNowiki
	ModeEmpty
	ModeRaw
)

// ExtensionArgs is what an extension-tag handler receives: the same
// frame/state/config/eval context as a parser function, plus the tag's
// attributes and body.
type ExtensionArgs struct {
	Name    string
	Attrs   []token.Attribute
	Source  string // backing source buffer, for attribute value slicing
	Body    string
	HasBody bool
	Span    span.Span
	HasSpan bool

	// KV holds pre-evaluated attributes for tags invoked through #tag
	// or a module host call, where no attribute source spans exist.
	KV map[string]string

	Frame   *rstate.StackFrame
	State   *rstate.State
	Config  *wikiconf.Config
	Eval    Expander
	Modules ModuleInvoker
	Store   store.Store
	Context context.Context
}

// Attr returns the literal string value of the named attribute.
func (a ExtensionArgs) Attr(name string) (string, bool) {
	if a.KV != nil {
		v, ok := a.KV[strings.ToLower(name)]
		return v, ok
	}
	for _, at := range a.Attrs {
		if strings.EqualFold(at.Name.Slice(a.Source), name) {
			if !at.HasValue {
				return "", true
			}
			return at.Value.Slice(a.Source), true
		}
	}
	return "", false
}

// ExtensionHandler implements one extension tag.
type ExtensionHandler func(a ExtensionArgs) (OutputMode, string, error)

// Registry holds both dispatch tables, case-folded by ASCII lowercase.
type Registry struct {
	variables map[string]ParserFunctionHandler // zero-arg magic words
	functions map[string]ParserFunctionHandler // colon-invoked hooks
	tags      map[string]ExtensionHandler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		variables: make(map[string]ParserFunctionHandler),
		functions: make(map[string]ParserFunctionHandler),
		tags:      make(map[string]ExtensionHandler),
	}
}

// RegisterVariable adds a zero-argument magic word.
func (r *Registry) RegisterVariable(name string, h ParserFunctionHandler) {
	r.variables[fold(name)] = h
}

// RegisterFunction adds a colon-invoked function hook. Names starting with
// '#' are stored as given (the '#' is part of the lookup key).
func (r *Registry) RegisterFunction(name string, h ParserFunctionHandler) {
	r.functions[fold(name)] = h
}

// RegisterTag adds an extension-tag handler.
func (r *Registry) RegisterTag(name string, h ExtensionHandler) {
	r.tags[fold(name)] = h
}

// IsVariable reports whether name is a registered zero-arg variable.
func (r *Registry) IsVariable(name string) bool {
	_, ok := r.variables[fold(name)]
	return ok
}

// IsFunction reports whether name is a registered colon-invoked
// function hook.
func (r *Registry) IsFunction(name string) bool {
	if strings.HasPrefix(name, "#") {
		return true
	}
	_, ok := r.functions[fold(name)]
	return ok
}

// IsTag reports whether name is a registered extension tag.
func (r *Registry) IsTag(name string) bool {
	_, ok := r.tags[fold(name)]
	return ok
}

// CallVariable invokes a zero-arg magic word.
func (r *Registry) CallVariable(a IndexedArgs) (string, bool, error) {
	h, ok := r.variables[fold(a.Callee)]
	if !ok {
		return "", false, nil
	}
	s, err := h(a)
	return s, true, err
}

// CallFunction invokes the colon-invoked function hook registered under
// the case-folded callee, '#' included; there is no fallback between the
// '#' and bare forms of a name.
func (r *Registry) CallFunction(a IndexedArgs) (string, bool, error) {
	key := fold(a.Callee)
	h, ok := r.functions[key]
	if !ok {
		return "", false, nil
	}
	s, err := h(a)
	return s, true, err
}

// CallTag invokes an extension-tag handler.
func (r *Registry) CallTag(a ExtensionArgs) (OutputMode, string, bool, error) {
	h, ok := r.tags[fold(a.Name)]
	if !ok {
		return ModeEmpty, "", false, nil
	}
	mode, s, err := h(a)
	return mode, s, true, err
}

func fold(name string) string {
	return strings.ToLower(name)
}
