package modhost

import (
	"encoding/json"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/title"
)

// newState builds a sandboxed Lua state: base, package, table, string,
// and math libraries only, plus the mw support table. I/O, OS, and debug
// libraries are never opened.
func (inv *invocation) newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	inv.registerMw(L)
	return L
}

func (inv *invocation) registerMw(L *lua.LState) {
	mw := L.NewTable()

	L.SetField(mw, "loadPackage", L.NewFunction(inv.luaLoadPackage))
	L.SetField(mw, "loadJsonData", L.NewFunction(inv.luaLoadJsonData))
	L.SetField(mw, "frameExists", L.NewFunction(inv.luaFrameExists))
	L.SetField(mw, "newChildFrame", L.NewFunction(inv.luaNewChildFrame))
	L.SetField(mw, "getExpandedArgument", L.NewFunction(inv.luaGetExpandedArgument))
	L.SetField(mw, "getAllExpandedArguments", L.NewFunction(inv.luaGetAllExpandedArguments))
	L.SetField(mw, "expandTemplate", L.NewFunction(inv.luaExpandTemplate))
	L.SetField(mw, "callParserFunction", L.NewFunction(inv.luaCallParserFunction))
	L.SetField(mw, "preprocess", L.NewFunction(inv.luaPreprocess))
	L.SetField(mw, "unstrip", L.NewFunction(inv.luaUnstrip))
	L.SetField(mw, "getFrameTitle", L.NewFunction(inv.luaGetFrameTitle))
	L.SetField(mw, "isSubsting", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LFalse)
		return 1
	}))
	L.SetField(mw, "addWarning", L.NewFunction(func(L *lua.LState) int {
		inv.h.Log.Warn("module warning", "text", L.OptString(1, ""))
		return 0
	}))
	L.SetField(mw, "log", L.NewFunction(func(L *lua.LState) int {
		inv.h.Log.Debug("module log", "text", L.OptString(1, ""))
		return 0
	}))

	inv.registerTitleLib(L, mw)
	inv.registerUstringLib(L, mw)
	inv.registerTextLib(L, mw)

	L.SetGlobal("mw", mw)
}

// luaLoadPackage loads a built-in pure-script package by name, or falls
// back to the Module namespace. Results are cached in package.loaded.
func (inv *invocation) luaLoadPackage(L *lua.LState) int {
	name := L.CheckString(1)

	loaded := L.GetField(L.GetGlobal("package"), "loaded")
	if tbl, ok := loaded.(*lua.LTable); ok {
		if v := tbl.RawGetString(name); v != lua.LNil {
			L.Push(v)
			return 1
		}
	}

	src, builtin := builtinPackages[name]
	if !builtin {
		t := title.New(inv.h.Cfg.Namespaces, name, inv.h.Cfg.Namespaces.ByID(title.NSModule))
		art, err := inv.h.Store.Get(inv.h.Eval.Context(), t.Key())
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		src = art.Body
	}

	inv.burn(L, 1000)
	chunk, err := L.LoadString(src)
	if err != nil {
		L.RaiseError("loadPackage(%s): %v", name, err)
		return 0
	}
	L.Push(chunk)
	L.Call(0, 1)
	result := L.Get(-1)
	L.Pop(1)
	if tbl, ok := loaded.(*lua.LTable); ok && result != lua.LNil {
		tbl.RawSetString(name, result)
	}
	L.Push(result)
	return 1
}

// luaLoadJsonData reads a JSON article and transcodes it directly into
// a table.
func (inv *invocation) luaLoadJsonData(L *lua.LState) int {
	name := L.CheckString(1)
	t := title.New(inv.h.Cfg.Namespaces, name, inv.h.Cfg.Namespaces.Main())
	art, err := inv.h.Store.Get(inv.h.Eval.Context(), t.Key())
	if err != nil || art.Model != store.ModelJSON {
		L.RaiseError("bad argument #1 to 'mw.loadJsonData' ('%s' is not a valid JSON page)", name)
		return 0
	}
	var data any
	if err := json.Unmarshal([]byte(art.Body), &data); err != nil {
		L.RaiseError("bad argument #1 to 'mw.loadJsonData' ('%s' is not a valid JSON page)", name)
		return 0
	}
	L.Push(jsonToLua(L, data))
	return 1
}

func jsonToLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []any:
		tbl := L.NewTable()
		for i, item := range x {
			tbl.RawSetInt(i+1, jsonToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range x {
			tbl.RawSetString(k, jsonToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

func (inv *invocation) luaFrameExists(L *lua.LState) int {
	_, ok := inv.resolveFrame(L.CheckString(1))
	L.Push(lua.LBool(ok))
	return 1
}

// luaNewChildFrame creates a fake child frame named frame{N}, N >= 2,
// registered on the parent's children map so later frame lookups can
// find it.
func (inv *invocation) luaNewChildFrame(L *lua.LState) int {
	parentID := L.CheckString(1)
	titleText := L.OptString(2, "")
	args := argsFromTable(L.OptTable(3, nil))

	parent, ok := inv.resolveFrame(parentID)
	if !ok {
		L.RaiseError("no frame %q", parentID)
		return 0
	}

	if inv.nextID < 2 {
		inv.nextID = 2
	}
	name := fmt.Sprintf("frame%d", inv.nextID)
	inv.nextID++

	t := parent.Title
	if titleText != "" {
		t = title.New(inv.h.Cfg.Namespaces, titleText, inv.h.Cfg.Namespaces.ByID(title.NSTemplate))
	}
	child := parent.NewChild(name, t)
	child.Args = rstate.NewKeyCacheKvs(args)
	child.Eval = parent.Eval
	child.Source = parent.Source

	L.Push(inv.makeFrame(L, name))
	return 1
}

func (inv *invocation) luaGetExpandedArgument(L *lua.LState) int {
	frameID := L.CheckString(1)
	key := L.CheckString(2)

	// Fast path: a cached value resolves without a host call.
	if frame, ok := inv.resolveFrame(frameID); ok && frame.Args != nil {
		switch value, state := frame.Args.Peek(key); state {
		case rstate.CachedPresent:
			L.Push(lua.LString(stripSourceMarkers(inv.state, value)))
			return 1
		case rstate.CachedNil:
			L.Push(lua.LNil)
			return 1
		}
	}

	inv.burn(L, 100)
	out, _, err := inv.dispatch(hostCall{tag: callGetExpandedArgument, frameID: frameID, key: key})
	if err == errArgAbsent {
		L.Push(lua.LNil)
		return 1
	}
	if err != nil {
		L.RaiseError("getExpandedArgument: %v", err)
		return 0
	}
	L.Push(lua.LString(out))
	return 1
}

func (inv *invocation) luaGetAllExpandedArguments(L *lua.LState) int {
	frameID := L.CheckString(1)

	// Fast path: when every argument is already cache-resident no host
	// call is needed; a partial cache falls through.
	if frame, ok := inv.resolveFrame(frameID); ok && frame.Args != nil {
		if all, ok := frame.Args.AllCached(); ok {
			L.Push(argsToLua(L, inv, all))
			return 1
		}
	}

	inv.burn(L, 500)
	_, all, err := inv.dispatch(hostCall{tag: callGetAllExpandedArguments, frameID: frameID})
	if err != nil {
		L.RaiseError("getAllExpandedArguments: %v", err)
		return 0
	}
	L.Push(argsToLua(L, inv, all))
	return 1
}

// argsToLua converts an expanded argument map to a table, keeping
// numeric keys numeric so ipairs works on positional arguments.
func argsToLua(L *lua.LState, inv *invocation, args map[string]string) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range args {
		v = stripSourceMarkers(inv.state, v)
		if n, ok := parseInt(k); ok {
			tbl.RawSetInt(n, lua.LString(v))
		} else {
			tbl.RawSetString(k, lua.LString(v))
		}
	}
	return tbl
}

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func (inv *invocation) luaExpandTemplate(L *lua.LState) int {
	frameID := L.CheckString(1)
	name := L.CheckString(2)
	args := argsFromTable(L.OptTable(3, nil))

	inv.burn(L, 1000)
	out, _, err := inv.dispatch(hostCall{tag: callExpandTemplate, frameID: frameID, name: name, args: args})
	if err != nil {
		L.RaiseError("expandTemplate: %v", err)
		return 0
	}
	L.Push(lua.LString(out))
	return 1
}

func (inv *invocation) luaCallParserFunction(L *lua.LState) int {
	frameID := L.CheckString(1)
	name := L.CheckString(2)
	args := argsFromTable(L.OptTable(3, nil))

	inv.burn(L, 500)
	out, _, err := inv.dispatch(hostCall{tag: callParserFunction, frameID: frameID, name: name, args: args})
	if err != nil {
		L.RaiseError("callParserFunction: %v", err)
		return 0
	}
	L.Push(lua.LString(out))
	return 1
}

func (inv *invocation) luaPreprocess(L *lua.LState) int {
	frameID := L.CheckString(1)
	text := L.CheckString(2)

	inv.burn(L, 500)
	out, _, err := inv.dispatch(hostCall{tag: callPreprocess, frameID: frameID, text: text})
	if err != nil {
		L.RaiseError("preprocess: %v", err)
		return 0
	}
	L.Push(lua.LString(out))
	return 1
}

func (inv *invocation) luaUnstrip(L *lua.LState) int {
	text := L.CheckString(1)
	out, _, err := inv.dispatch(hostCall{tag: callUnstrip, text: text})
	if err != nil {
		L.RaiseError("unstrip: %v", err)
		return 0
	}
	L.Push(lua.LString(out))
	return 1
}

func (inv *invocation) luaGetFrameTitle(L *lua.LState) int {
	frame, ok := inv.resolveFrame(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(frame.Title.FullText()))
	return 1
}

// makeFrame builds the script-visible frame object for a frame id.
func (inv *invocation) makeFrame(L *lua.LState, id string) *lua.LTable {
	frame := L.NewTable()
	frame.RawSetString("__frameId", lua.LString(id))

	args := L.NewTable()
	argsMeta := L.NewTable()
	argsMeta.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		key := lua.LVAsString(L.Get(2))
		L.Pop(L.GetTop())
		L.Push(lua.LString(id))
		L.Push(lua.LString(key))
		return inv.luaGetExpandedArgument(L)
	}))
	L.SetMetatable(args, argsMeta)
	frame.RawSetString("args", args)

	frame.RawSetString("getTitle", L.NewFunction(func(L *lua.LState) int {
		f, ok := inv.resolveFrame(id)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(f.Title.FullText()))
		return 1
	}))
	frame.RawSetString("getParent", L.NewFunction(func(L *lua.LState) int {
		if id == "frame1" {
			if _, ok := inv.frames["frame0"]; ok {
				L.Push(inv.makeFrame(L, "frame0"))
				return 1
			}
		}
		L.Push(lua.LNil)
		return 1
	}))
	frame.RawSetString("preprocess", L.NewFunction(func(L *lua.LState) int {
		text := frameMethodText(L)
		L.SetTop(0)
		L.Push(lua.LString(id))
		L.Push(lua.LString(text))
		return inv.luaPreprocess(L)
	}))
	frame.RawSetString("expandTemplate", L.NewFunction(func(L *lua.LState) int {
		opts := L.CheckTable(2)
		name := lua.LVAsString(opts.RawGetString("title"))
		argTbl, _ := opts.RawGetString("args").(*lua.LTable)
		L.SetTop(0)
		L.Push(lua.LString(id))
		L.Push(lua.LString(name))
		if argTbl != nil {
			L.Push(argTbl)
		}
		return inv.luaExpandTemplate(L)
	}))
	frame.RawSetString("callParserFunction", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(2)
		argTbl, _ := L.Get(3).(*lua.LTable)
		L.SetTop(0)
		L.Push(lua.LString(id))
		L.Push(lua.LString(name))
		if argTbl != nil {
			L.Push(argTbl)
		}
		return inv.luaCallParserFunction(L)
	}))
	frame.RawSetString("newChild", L.NewFunction(func(L *lua.LState) int {
		opts, _ := L.Get(2).(*lua.LTable)
		var name string
		var argTbl *lua.LTable
		if opts != nil {
			name = lua.LVAsString(opts.RawGetString("title"))
			argTbl, _ = opts.RawGetString("args").(*lua.LTable)
		}
		L.SetTop(0)
		L.Push(lua.LString(id))
		L.Push(lua.LString(name))
		if argTbl != nil {
			L.Push(argTbl)
		}
		return inv.luaNewChildFrame(L)
	}))
	frame.RawSetString("getArgs", L.NewFunction(func(L *lua.LState) int {
		L.SetTop(0)
		L.Push(lua.LString(id))
		return inv.luaGetAllExpandedArguments(L)
	}))

	return frame
}

// frameMethodText extracts the text argument of a frame method that
// accepts either a string or a {text=...} table.
func frameMethodText(L *lua.LState) string {
	v := L.Get(2)
	if tbl, ok := v.(*lua.LTable); ok {
		return lua.LVAsString(tbl.RawGetString("text"))
	}
	return lua.LVAsString(v)
}
