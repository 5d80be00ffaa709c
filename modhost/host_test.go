package modhost

import (
	"context"
	"strings"
	"testing"

	"github.com/mwcore/wikirender/expand"
	"github.com/mwcore/wikirender/funcs"
	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/wikiconf"
	"github.com/mwcore/wikirender/wikitext"
)

type env struct {
	ev   *expand.Evaluator
	host *Host
	root *rstate.StackFrame
}

func newEnv(t *testing.T, articles map[string]string) *env {
	t.Helper()
	cfg := wikiconf.Default()
	mem := store.NewMemStore()
	for name, body := range articles {
		model := store.ModelWikitext
		switch {
		case strings.HasPrefix(name, "Module:") && strings.HasSuffix(name, ".json"):
			model = store.ModelJSON
		case strings.HasPrefix(name, "Module:"):
			model = store.ModelModule
		}
		mem.Put(&store.Article{Title: name, Model: model, Body: body})
	}
	reg := funcs.NewRegistry()
	funcs.RegisterBuiltins(reg)
	ev := expand.NewEvaluator(context.Background(), cfg, mem, reg, rstate.NewState(), store.NewTemplateCache(16), expand.LoadModule)
	host := NewHost(cfg, mem)
	host.Eval = ev
	ev.Modules = host
	root := rstate.NewRootFrame(title.New(cfg.Namespaces, "Page", cfg.Namespaces.Main()))
	return &env{ev: ev, host: host, root: root}
}

func (e *env) expand(t *testing.T, src string) string {
	t.Helper()
	doc, err := wikitext.Parse(e.ev.Cfg.Grammar, src, false)
	if err != nil {
		t.Fatal(err)
	}
	e.root.Source = src
	out, err := e.ev.ExpandDocument(doc, e.root)
	if err != nil {
		t.Fatalf("expanding %q: %v", src, err)
	}
	return out
}

const helloModule = `
local p = {}
function p.hello(frame)
	return "Hello, " .. (frame.args.name or "world")
end
return p
`

func TestInvokeSimpleModule(t *testing.T) {
	e := newEnv(t, map[string]string{"Module:Hello": helloModule})
	if got := e.expand(t, "{{#invoke:Hello|hello|name=Go}}"); got != "Hello, Go" {
		t.Errorf("got %q", got)
	}
	if got := e.expand(t, "{{#invoke:Hello|hello}}"); got != "Hello, world" {
		t.Errorf("got %q", got)
	}
}

func TestInvokeMissingModuleDegrades(t *testing.T) {
	e := newEnv(t, nil)
	got := e.expand(t, "{{#invoke:Nope|f}}")
	if !strings.Contains(got, `class="error"`) {
		t.Errorf("got %q, want a visible error span", got)
	}
}

func TestInvokeBrokenModuleDegrades(t *testing.T) {
	e := newEnv(t, map[string]string{"Module:Bad": `error("boom")`})
	got := e.expand(t, "{{#invoke:Bad|f}}")
	if !strings.Contains(got, `class="error"`) {
		t.Errorf("got %q", got)
	}
}

const expanderModule = `
local p = {}
function p.go(frame)
	return mw.expandTemplate("frame1", "Inner", { x = "1" })
end
return p
`

func TestExpandTemplateHostCall(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Module:Caller":   expanderModule,
		"Template:Inner": "[{{{x}}}]",
	})
	if got := e.expand(t, "{{#invoke:Caller|go}}"); got != "[1]" {
		t.Errorf("got %q", got)
	}
}

const ustringModule = `
local p = {}
function p.find(frame)
	local s, e = mw.ustring.find("Héllo", "%a+")
	return tostring(s) .. "," .. tostring(e)
end
function p.gsub(frame)
	local out = mw.ustring.gsub("hello", "l", "L")
	return out
end
return p
`

func TestUstring(t *testing.T) {
	e := newEnv(t, map[string]string{"Module:U": ustringModule})
	if got := e.expand(t, "{{#invoke:U|find}}"); got != "1,5" {
		t.Errorf("ustring.find = %q, want 1,5", got)
	}
	if got := e.expand(t, "{{#invoke:U|gsub}}"); got != "heLLo" {
		t.Errorf("ustring.gsub = %q", got)
	}
}

const titleModule = `
local p = {}
function p.current(frame)
	local t = mw.title.getCurrentTitle()
	return t.text
end
function p.ns(frame)
	local t = mw.title.new("Template:X")
	return t.nsText .. "/" .. tostring(t.namespace)
end
return p
`

func TestTitleLib(t *testing.T) {
	e := newEnv(t, map[string]string{"Module:T": titleModule})
	if got := e.expand(t, "{{#invoke:T|current}}"); got != "Page" {
		t.Errorf("current title = %q", got)
	}
	if got := e.expand(t, "{{#invoke:T|ns}}"); got != "Template/10" {
		t.Errorf("title.new = %q", got)
	}
}

const jsonModule = `
local p = {}
function p.read(frame)
	local data = mw.loadJsonData("Module:Data.json")
	return data.greeting .. tostring(data.count)
end
return p
`

func TestLoadJsonData(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Module:J":         jsonModule,
		"Module:Data.json": `{"greeting": "hi", "count": 3}`,
	})
	if got := e.expand(t, "{{#invoke:J|read}}"); got != "hi3" {
		t.Errorf("got %q", got)
	}
}

const packageModule = `
local p = {}
function p.bits(frame)
	local bit32 = mw.loadPackage("bit32")
	return tostring(bit32.band(12, 10))
end
return p
`

func TestBuiltinPackages(t *testing.T) {
	e := newEnv(t, map[string]string{"Module:B": packageModule})
	if got := e.expand(t, "{{#invoke:B|bits}}"); got != "8" {
		t.Errorf("bit32.band = %q", got)
	}
}

const childFrameModule = `
local p = {}
function p.child(frame)
	local c = frame:newChild{ title = "Template:C", args = { "one" } }
	return c.args[1]
end
return p
`

func TestChildFrames(t *testing.T) {
	e := newEnv(t, map[string]string{"Module:C": childFrameModule})
	if got := e.expand(t, "{{#invoke:C|child}}"); got != "one" {
		t.Errorf("got %q", got)
	}
}

func TestTimingRecorded(t *testing.T) {
	e := newEnv(t, map[string]string{"Module:Hello": helloModule})
	e.expand(t, "{{#invoke:Hello|hello}}")
	if _, ok := e.ev.State.Timings["Module:Hello"]; !ok {
		t.Errorf("timings = %v, want Module:Hello", e.ev.State.Timings)
	}
}
