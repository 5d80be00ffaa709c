// Package rstate holds the per-render mutable state threaded through the
// template expander, parser-function/extension-tag dispatch, module host,
// and HTML emitter: the StackFrame chain and the overall per-article
// Render state.
//
// It is a leaf package deliberately free of any dependency on expand,
// funcs, modhost, or emit so that all four can depend on it without a
// cycle; handlers that need to *evaluate* wikitext reach the expander
// through a narrow Expander interface (see funcs.Expander) rather than
// through this package.
package rstate

import (
	"strings"

	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/token"
)

// ArgValue is one cached, lazily evaluated argument value.
type ArgValue struct {
	Raw     token.Argument
	Value   string // populated once Resolved is true
	Resolved bool
}

// KeyCacheKvs is a StackFrame's lazy key/value argument cache: positional
// arguments get ascending integer keys assigned in source order among
// unnamed arguments; named arguments use their evaluated, ASCII-trimmed
// name. Both key resolution and value evaluation are memoised
// independently.
type KeyCacheKvs struct {
	raw []token.Argument

	// keys[i] is the resolved key for raw[i], or "" if not yet resolved.
	keys     []string
	keysDone bool

	values map[string]*ArgValue
	order  []string // insertion order of resolved keys, for GetAllExpandedArguments
}

// NewKeyCacheKvs wraps the raw caller arguments of a template/module
// invocation.
func NewKeyCacheKvs(raw []token.Argument) *KeyCacheKvs {
	return &KeyCacheKvs{raw: raw, keys: make([]string, len(raw)), values: make(map[string]*ArgValue)}
}

// EvalFunc evaluates a token slice (a name or value) to its wikitext
// text; supplied by the expander so this package stays evaluator-free.
type EvalFunc func(toks []token.Token) string

// resolveKeys assigns the ascending-integer/named key to every raw
// argument exactly once: positional arguments get ascending integer keys
// starting at 1, assigned in source order among arguments without a name.
func (kc *KeyCacheKvs) resolveKeys(eval EvalFunc) {
	if kc.keysDone {
		return
	}
	next := 1
	for i, arg := range kc.raw {
		if arg.HasName() {
			name := strings.TrimSpace(eval(arg.NameTokens()))
			kc.keys[i] = name
		} else {
			kc.keys[i] = itoa(next)
			next++
		}
	}
	kc.keysDone = true
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Get returns the evaluated value for key, evaluating and memoising it
// (and the full key table, if not already resolved) on first access.
func (kc *KeyCacheKvs) Get(key string, eval EvalFunc) (string, bool) {
	kc.resolveKeys(eval)
	if v, ok := kc.values[key]; ok {
		return v.Value, true
	}
	for i, k := range kc.keys {
		if k != key {
			continue
		}
		arg := kc.raw[i]
		val := eval(arg.ValueTokens())
		if arg.HasName() {
			val = strings.TrimSpace(val)
		}
		kc.values[key] = &ArgValue{Raw: arg, Value: val, Resolved: true}
		kc.order = append(kc.order, key)
		return val, true
	}
	return "", false
}

// CachedValue is the three-state answer of a non-evaluating lookup: it
// never evaluates, only reports what is already memoised.
type CachedValue int

const (
	CachedUnknown CachedValue = iota // key existence not yet determined
	CachedNil                        // key is known absent
	CachedPresent                    // key is cached and present in Value
)

// Peek is the non-evaluating fast path used by GetExpandedArgument.
func (kc *KeyCacheKvs) Peek(key string) (string, CachedValue) {
	if !kc.keysDone {
		return "", CachedUnknown
	}
	if v, ok := kc.values[key]; ok {
		return v.Value, CachedPresent
	}
	for _, k := range kc.keys {
		if k == key {
			return "", CachedUnknown // key exists among raw args but not yet evaluated
		}
	}
	return "", CachedNil
}

// AllCached reports whether every raw argument has had its key resolved
// and value evaluated, and if so returns the full key->value map.
func (kc *KeyCacheKvs) AllCached() (map[string]string, bool) {
	if !kc.keysDone || len(kc.values) < len(kc.raw) {
		return nil, false
	}
	out := make(map[string]string, len(kc.values))
	for k, v := range kc.values {
		out[k] = v.Value
	}
	return out, true
}

// Keys forces full key resolution and returns every known key in source
// order, used by mw.frame:getArgs() to enumerate without evaluating.
func (kc *KeyCacheKvs) Keys(eval EvalFunc) []string {
	kc.resolveKeys(eval)
	out := make([]string, len(kc.keys))
	copy(out, kc.keys)
	return out
}

// StackFrame is one template/module invocation record. Frames form a path
// (never a DAG): Parent is a non-owning back reference with lifetime equal
// to the caller's stack entry, represented here as a plain pointer into
// the render's call stack rather than an arena index, since Go's GC makes
// an index indirection unnecessary for a parent-only back edge.
type StackFrame struct {
	Title  title.Title
	Source string // the frame's own body text, for diagnostics
	Args   *KeyCacheKvs
	Parent *StackFrame

	// Eval evaluates argument name/value token slices against the
	// caller's context; installed by the expander when the frame is
	// pushed.
	Eval EvalFunc

	// Children holds fake frames created by mw.newChildFrame, keyed by the
	// synthetic "frameN" name.
	Children map[string]*StackFrame

	// Depth is this frame's distance from the (virtual) root frame; the root
	// itself is depth 0 and is exempt from the recursion guard.
	Depth int
}

// NewRootFrame returns the synthetic root frame for a render: it has no
// title collision semantics of its own.
func NewRootFrame(t title.Title) *StackFrame {
	return &StackFrame{Title: t, Depth: 0}
}

// Push creates a child frame invoking callee with raw, linked to sf as
// parent.
func (sf *StackFrame) Push(callee title.Title, source string, raw []token.Argument) *StackFrame {
	return &StackFrame{
		Title:  callee,
		Source: source,
		Args:   NewKeyCacheKvs(raw),
		Parent: sf,
		Depth:  sf.Depth + 1,
	}
}

// WithSource returns a shallow copy of sf whose token spans index src
// instead of the original body. Used when a handler re-parses generated
// wikitext but argument lookups must still resolve against sf's caller.
func (sf *StackFrame) WithSource(src string) *StackFrame {
	dup := *sf
	dup.Source = src
	return &dup
}

// Root walks parent edges to the render's root frame.
func (sf *StackFrame) Root() *StackFrame {
	f := sf
	for f.Parent != nil {
		f = f.Parent
	}
	return f
}

// Backtrace renders the frame chain innermost-first for diagnostics.
func (sf *StackFrame) Backtrace() []string {
	var out []string
	for f := sf; f != nil; f = f.Parent {
		out = append(out, f.Title.FullText())
	}
	return out
}

// HasAncestor reports whether any ancestor frame (excluding the root, i.e.
// excluding any frame at Depth 0) has the given title, implementing the
// recursion guard: any ancestor frame except the root whose title
// equals the callee is a transclusion cycle.
func (sf *StackFrame) HasAncestor(callee title.Title) bool {
	for f := sf; f != nil; f = f.Parent {
		if f.Depth == 0 {
			continue
		}
		if f.Title.Equal(callee) {
			return true
		}
	}
	return false
}

// NewChild registers and returns a fake child frame under name: name is
// assigned by the caller as "frame{N}" with N >= 2.
func (sf *StackFrame) NewChild(name string, t title.Title) *StackFrame {
	if sf.Children == nil {
		sf.Children = make(map[string]*StackFrame)
	}
	child := &StackFrame{Title: t, Parent: sf, Depth: sf.Depth}
	sf.Children[name] = child
	return child
}

// ChildByName looks up a previously created fake child frame.
func (sf *StackFrame) ChildByName(name string) (*StackFrame, bool) {
	f, ok := sf.Children[name]
	return f, ok
}
