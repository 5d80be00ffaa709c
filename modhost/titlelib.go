package modhost

import (
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/mwcore/wikirender/funcs"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/title"
)

// registerTitleLib installs mw.title: title objects with eagerly
// populated cheap fields and a single lazy lookup for the expensive
// ones (exists, id, contentModel, isRedirect).
func (inv *invocation) registerTitleLib(L *lua.LState, mw *lua.LTable) {
	lib := L.NewTable()
	L.SetField(lib, "new", L.NewFunction(func(L *lua.LState) int {
		text := L.CheckString(1)
		nsArg := L.OptString(2, "")
		ns := inv.h.Cfg.Namespaces.Main()
		if nsArg != "" {
			if found := inv.h.Cfg.Namespaces.ByName(nsArg); found != nil {
				ns = found
			}
		}
		t := title.New(inv.h.Cfg.Namespaces, text, ns)
		L.Push(inv.makeTitle(L, t))
		return 1
	}))
	L.SetField(lib, "makeTitle", L.NewFunction(func(L *lua.LState) int {
		nsName := L.CheckString(1)
		text := L.CheckString(2)
		ns := inv.h.Cfg.Namespaces.ByName(nsName)
		if ns == nil {
			L.Push(lua.LNil)
			return 1
		}
		t := title.New(inv.h.Cfg.Namespaces, ns.Name+":"+text, ns)
		L.Push(inv.makeTitle(L, t))
		return 1
	}))
	L.SetField(lib, "getCurrentTitle", L.NewFunction(func(L *lua.LState) int {
		frame, ok := inv.resolveFrame("frame1")
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(inv.makeTitle(L, frame.Root().Title))
		return 1
	}))
	L.SetField(mw, "title", lib)
}

// expensiveData is the store-backed portion of a title object, loaded
// at most once per object.
type expensiveData struct {
	loaded     bool
	exists     bool
	id         int64
	model      string
	isRedirect bool
}

func (inv *invocation) getExpensiveData(t title.Title, data *expensiveData) {
	if data.loaded {
		return
	}
	data.loaded = true
	art, err := inv.h.Store.Get(inv.h.Eval.Context(), t.Key())
	if err != nil {
		return
	}
	data.exists = true
	data.id = art.ID
	data.model = string(art.Model)
	data.isRedirect = art.Redirect != ""
}

func (inv *invocation) makeTitle(L *lua.LState, t title.Title) *lua.LTable {
	obj := L.NewTable()
	obj.RawSetString("text", lua.LString(t.Text()))
	obj.RawSetString("fullText", lua.LString(t.FullText()))
	obj.RawSetString("nsText", lua.LString(t.Namespace().Name))
	obj.RawSetString("namespace", lua.LNumber(t.Namespace().ID))
	obj.RawSetString("interwiki", lua.LString(t.Interwiki()))
	obj.RawSetString("fragment", lua.LString(t.Fragment()))
	obj.RawSetString("thePartialUrl", lua.LString(t.PartialURL()))
	obj.RawSetString("isTalkPage", lua.LBool(t.Namespace().IsTalk()))
	obj.RawSetString("baseText", lua.LString(t.BaseText()))
	obj.RawSetString("rootText", lua.LString(t.RootText()))
	obj.RawSetString("subpageText", lua.LString(t.SubpageText()))

	data := &expensiveData{}

	obj.RawSetString("exists", L.NewFunction(func(L *lua.LState) int {
		inv.getExpensiveData(t, data)
		L.Push(lua.LBool(data.exists))
		return 1
	}))
	obj.RawSetString("id", L.NewFunction(func(L *lua.LState) int {
		inv.getExpensiveData(t, data)
		L.Push(lua.LNumber(data.id))
		return 1
	}))
	obj.RawSetString("contentModel", L.NewFunction(func(L *lua.LState) int {
		inv.getExpensiveData(t, data)
		if !data.exists {
			L.Push(lua.LString(string(store.ModelWikitext)))
			return 1
		}
		L.Push(lua.LString(data.model))
		return 1
	}))
	obj.RawSetString("isRedirect", L.NewFunction(func(L *lua.LState) int {
		inv.getExpensiveData(t, data)
		L.Push(lua.LBool(data.isRedirect))
		return 1
	}))

	obj.RawSetString("fullUrl", L.NewFunction(func(L *lua.LState) int {
		u := inv.h.Cfg.ArticleURL(t.PartialURL())
		scheme := ""
		if opts, ok := L.Get(3).(*lua.LTable); ok {
			scheme = lua.LVAsString(opts.RawGetString("scheme"))
		}
		if scheme == "" {
			// Default is protocol-relative.
			if idx := strings.Index(u, "//"); idx > 0 {
				u = u[idx:]
			}
		} else if idx := strings.Index(u, "://"); idx > 0 {
			u = scheme + u[idx:]
		}
		L.Push(lua.LString(u + titleQuery(L) + titleFragment(t)))
		return 1
	}))
	obj.RawSetString("canonicalUrl", L.NewFunction(func(L *lua.LState) int {
		u := inv.h.Cfg.ArticleURL(t.PartialURL())
		L.Push(lua.LString(u + titleQuery(L) + titleFragment(t)))
		return 1
	}))
	obj.RawSetString("localUrl", L.NewFunction(func(L *lua.LState) int {
		u := inv.h.Cfg.ArticlePath + "/" + t.PartialURL()
		L.Push(lua.LString(u + titleQuery(L) + titleFragment(t)))
		return 1
	}))

	return obj
}

func titleFragment(t title.Title) string {
	if t.Fragment() == "" {
		return ""
	}
	return "#" + funcs.AnchorEncode(t.Fragment())
}

// titleQuery builds the optional query string from a url method's
// second argument: a string passes through, a table is URL-encoded with
// nested tables producing key[subkey]=value forms.
func titleQuery(L *lua.LState) string {
	v := L.Get(2)
	switch q := v.(type) {
	case lua.LString:
		if q == "" {
			return ""
		}
		return "?" + string(q)
	case *lua.LTable:
		pairs := encodeQueryTable(q, "")
		if len(pairs) == 0 {
			return ""
		}
		return "?" + strings.Join(pairs, "&")
	default:
		return ""
	}
}

func encodeQueryTable(tbl *lua.LTable, prefix string) []string {
	var out []string
	tbl.ForEach(func(k, v lua.LValue) {
		key := lua.LVAsString(k)
		if prefix != "" {
			key = prefix + "[" + key + "]"
		}
		if nested, ok := v.(*lua.LTable); ok {
			out = append(out, encodeQueryTable(nested, key)...)
			return
		}
		out = append(out, queryEscape(key)+"="+queryEscape(lua.LVAsString(v)))
	})
	sort.Strings(out)
	return out
}

func queryEscape(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '[', c == ']':
			b.WriteByte(c)
		case c == ' ':
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
		}
	}
	return b.String()
}
