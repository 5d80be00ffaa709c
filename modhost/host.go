// Package modhost executes sandboxed scripts from Module-namespace
// articles, exposing a MediaWiki-compatible support surface to them.
//
// Script-visible APIs that need renderer state are routed through a
// single tagged host-call dispatcher: every trampoline packs its
// arguments into a hostCall and resumes with the dispatcher's result;
// all of them except unstrip burn fuel first. Scripts never touch
// renderer state directly.
package modhost

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/mwcore/wikirender/expand"
	"github.com/mwcore/wikirender/funcs"
	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/strip"
	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/token"
	"github.com/mwcore/wikirender/wikiconf"
)

// Host runs module invocations against a shared configuration and
// article store. One Host serves many renders; all per-render state
// lives in the invocation.
type Host struct {
	Cfg   *wikiconf.Config
	Store store.Store
	Eval  *expand.Evaluator
	Log   *slog.Logger
}

// NewHost wires a module host. The evaluator back-reference is set by
// the renderer after both sides exist.
func NewHost(cfg *wikiconf.Config, st store.Store) *Host {
	return &Host{Cfg: cfg, Store: st, Log: slog.Default()}
}

var _ funcs.ModuleInvoker = (*Host)(nil)

// Invoke loads the named module from the Module namespace and calls fn
// with a frame built from args. Implements funcs.ModuleInvoker.
func (h *Host) Invoke(st *rstate.State, frame *rstate.StackFrame, module, fn string, args []token.Argument) (string, error) {
	t := title.New(h.Cfg.Namespaces, module, h.Cfg.Namespaces.ByID(title.NSModule))

	art, err := h.Store.Get(h.Eval.Context(), t.Key())
	if err != nil {
		return "", &rstate.ModuleError{Name: t.FullText(), FnName: fn, Inner: err}
	}
	art, err = h.Eval.ResolveRedirects(art)
	if err != nil {
		return "", &rstate.ModuleError{Name: t.FullText(), FnName: fn, Inner: err}
	}

	moduleFrame := h.Eval.PushFrame(frame, t, args)

	start := time.Now()
	out, err := h.run(st, moduleFrame, art, fn)
	st.RecordTiming(t.Key(), time.Since(start))
	if err != nil {
		return "", &rstate.ModuleError{Name: t.FullText(), FnName: fn, Inner: err}
	}
	return out, nil
}

func (h *Host) run(st *rstate.State, frame *rstate.StackFrame, art *store.Article, fn string) (string, error) {
	inv := &invocation{
		h:      h,
		state:  st,
		frames: map[string]*rstate.StackFrame{"frame1": frame},
		fuel:   h.Cfg.ModuleFuelLimit,
	}
	if frame.Parent != nil {
		inv.frames["frame0"] = frame.Parent
	}

	L := inv.newState()
	defer L.Close()

	// Host calls are the only preemption points, so a wall-clock bound
	// backstops scripts that never call out.
	ctx, cancel := context.WithTimeout(h.Eval.Context(), inv.timeBudget())
	defer cancel()
	L.SetContext(ctx)

	chunk, err := L.LoadString(art.Body)
	if err != nil {
		return "", err
	}
	L.Push(chunk)
	if err := L.PCall(0, 1, nil); err != nil {
		return "", err
	}
	exports, ok := L.Get(-1).(*lua.LTable)
	L.Pop(1)
	if !ok {
		return "", fmt.Errorf("module did not return a table of functions")
	}
	target := exports.RawGetString(fn)
	fnVal, ok := target.(*lua.LFunction)
	if !ok {
		return "", fmt.Errorf("no function %q in module", fn)
	}

	frameObj := inv.makeFrame(L, "frame1")
	if err := L.CallByParam(lua.P{Fn: fnVal, NRet: 1, Protect: true}, frameObj); err != nil {
		return "", err
	}
	result := L.Get(-1)
	L.Pop(1)
	if result == lua.LNil {
		return "", nil
	}
	return lua.LVAsString(result), nil
}

// callTag enumerates the host calls a script can yield.
type callTag int

const (
	callParserFunction callTag = iota
	callExpandTemplate
	callGetExpandedArgument
	callGetAllExpandedArguments
	callPreprocess
	callUnstrip
)

// hostCall is the stashed-argument bundle a trampoline parks before the
// dispatcher resumes it with a result.
type hostCall struct {
	tag     callTag
	frameID string
	name    string
	text    string
	key     string
	args    []token.Argument
}

// invocation is one module run: its Lua state, the frames visible to
// it, and its remaining fuel.
type invocation struct {
	h      *Host
	state  *rstate.State
	frames map[string]*rstate.StackFrame
	nextID int // next synthetic child frame number; starts at 2
	fuel   int
}

func (inv *invocation) timeBudget() time.Duration {
	// Fuel is denominated in abstract steps; the embedded engine has no
	// instruction hook, so steps convert to a wall bound at 10 steps/µs
	// with a floor that keeps tiny configurations usable.
	d := time.Duration(inv.fuel/10) * time.Microsecond
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

// burn spends fuel for one host call.
func (inv *invocation) burn(L *lua.LState, amount int) {
	inv.fuel -= amount
	if inv.fuel < 0 {
		L.RaiseError("module fuel exhausted")
	}
}

// resolveFrame finds a frame by its script-visible id, including
// synthetic children created by newChildFrame.
func (inv *invocation) resolveFrame(id string) (*rstate.StackFrame, bool) {
	if f, ok := inv.frames[id]; ok {
		return f, true
	}
	for _, f := range inv.frames {
		if child, ok := f.ChildByName(id); ok {
			return child, true
		}
	}
	return nil, false
}

// dispatch is the single resume point for every host call.
func (inv *invocation) dispatch(call hostCall) (string, map[string]string, error) {
	frame, ok := inv.resolveFrame(call.frameID)
	if !ok && call.tag != callUnstrip {
		return "", nil, fmt.Errorf("no frame %q", call.frameID)
	}

	switch call.tag {
	case callParserFunction:
		out, err := inv.h.Eval.CallParserFunction(frame, call.name, call.args)
		return out, nil, err

	case callExpandTemplate:
		t := title.New(inv.h.Cfg.Namespaces, call.name, inv.h.Cfg.Namespaces.ByID(title.NSTemplate))
		out, err := inv.h.Eval.CallTemplate(frame, t, call.args)
		return stripSourceMarkers(inv.state, out), nil, err

	case callGetExpandedArgument:
		if frame.Args == nil {
			return "", nil, nil
		}
		value, ok := frame.Args.Get(call.key, frame.Eval)
		if !ok {
			return "", nil, errArgAbsent
		}
		return stripSourceMarkers(inv.state, value), nil, nil

	case callGetAllExpandedArguments:
		out := make(map[string]string)
		if frame.Args == nil {
			return "", out, nil
		}
		for _, key := range frame.Args.Keys(frame.Eval) {
			if value, ok := frame.Args.Get(key, frame.Eval); ok {
				out[key] = stripSourceMarkers(inv.state, value)
			}
		}
		return "", out, nil

	case callPreprocess:
		out, err := inv.h.Eval.ExpandTemplateText(call.text, frame)
		return out, nil, err

	case callUnstrip:
		return inv.state.Strip.Resolve(call.text, func(m strip.Marker) string {
			if m.Kind == strip.NoWiki {
				return m.Content
			}
			return ""
		}), nil, nil
	}
	return "", nil, fmt.Errorf("unknown host call")
}

var errArgAbsent = fmt.Errorf("argument absent")

// stripSourceMarkers removes source-scope markers from text handed to a
// script; scripts pattern-match against argument text and stray
// sentinels break their anchored matches.
func stripSourceMarkers(st *rstate.State, s string) string {
	if !strings.Contains(s, "\x7f") {
		return s
	}
	return st.Strip.Resolve(s, func(m strip.Marker) string {
		switch m.Kind {
		case strip.WikiRsSourceStart, strip.WikiRsSourceEnd:
			return ""
		default:
			return m.Content
		}
	})
}

// argsFromTable converts a script argument table into raw arguments:
// integer keys become positional, everything else named.
func argsFromTable(tbl *lua.LTable) []token.Argument {
	if tbl == nil {
		return nil
	}
	var out []token.Argument
	tbl.ForEach(func(k, v lua.LValue) {
		value := lua.LVAsString(v)
		if _, isNum := k.(lua.LNumber); isNum {
			out = append(out, token.GeneratedArgument("", value))
		} else {
			out = append(out, token.GeneratedArgument(lua.LVAsString(k), value))
		}
	})
	return out
}
