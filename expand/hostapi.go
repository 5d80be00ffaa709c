package expand

import (
	"strings"

	"github.com/mwcore/wikirender/funcs"
	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/token"
)

// PushFrame creates a child frame for a scripted invocation. The child
// keeps the caller's source buffer because its argument tokens index
// that buffer, not the module's.
func (ev *Evaluator) PushFrame(parent *rstate.StackFrame, callee title.Title, args []token.Argument) *rstate.StackFrame {
	child := parent.Push(callee, parent.Source, args)
	child.Eval = ev.evalFunc(parent)
	return child
}

// CallTemplate transcludes callee with the given raw arguments in
// frame's context, returning the expanded wikitext.
func (ev *Evaluator) CallTemplate(frame *rstate.StackFrame, callee title.Title, args []token.Argument) (string, error) {
	w := &walker{ev: ev, frame: frame, mode: Strip}
	out, _, err := w.callTemplate(callee, args)
	return out, err
}

// CallParserFunction invokes a parser function by name in frame's
// context. A colon in the name carries an implicit first argument, the
// same as a source-level {{name:arg}} call.
func (ev *Evaluator) CallParserFunction(frame *rstate.StackFrame, name string, args []token.Argument) (string, error) {
	callee := name
	if lhs, rhs, found := strings.Cut(name, ":"); found {
		callee = lhs
		args = append([]token.Argument{token.GeneratedArgument("", rhs)}, args...)
	}

	ia := funcs.IndexedArgs{
		Callee:  strings.ToLower(strings.TrimSpace(callee)),
		Raw:     args,
		Frame:   frame,
		State:   ev.State,
		Config:  ev.Cfg,
		Eval:    ev,
		Modules: ev.Modules,
		Store:   ev.Store,
		Context: ev.Context(),
	}
	out, found, err := ev.Registry.CallFunction(ia)
	if err != nil {
		return "", err
	}
	if !found {
		out, found, err = ev.Registry.CallVariable(ia)
		if err != nil {
			return "", err
		}
	}
	if !found {
		return "", nil
	}
	return out, nil
}

// ResolveRedirects follows a redirect chain from art, bounded the same
// way template transclusion is.
func (ev *Evaluator) ResolveRedirects(art *store.Article) (*store.Article, error) {
	return resolveRedirects(ev, art)
}
