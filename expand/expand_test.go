package expand

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mwcore/wikirender/funcs"
	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/strip"
	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/wikiconf"
	"github.com/mwcore/wikirender/wikitext"
)

type env struct {
	ev   *Evaluator
	root *rstate.StackFrame
}

func newEnv(t *testing.T, pageTitle string, articles map[string]string) *env {
	t.Helper()
	cfg := wikiconf.Default()
	mem := store.NewMemStore()
	for name, body := range articles {
		model := store.ModelWikitext
		if strings.HasPrefix(name, "Module:") {
			model = store.ModelModule
		}
		mem.Put(&store.Article{Title: name, Model: model, Body: body})
	}
	reg := funcs.NewRegistry()
	funcs.RegisterBuiltins(reg)
	ev := NewEvaluator(context.Background(), cfg, mem, reg, rstate.NewState(), store.NewTemplateCache(16), LoadModule)
	root := rstate.NewRootFrame(title.New(cfg.Namespaces, pageTitle, cfg.Namespaces.Main()))
	return &env{ev: ev, root: root}
}

func (e *env) expand(t *testing.T, src string) string {
	t.Helper()
	out, err := e.expandErr(src)
	if err != nil {
		t.Fatalf("expanding %q: %v", src, err)
	}
	return out
}

func (e *env) expandErr(src string) (string, error) {
	doc, err := wikitext.Parse(e.ev.Cfg.Grammar, src, false)
	if err != nil {
		return "", err
	}
	e.root.Source = src
	return e.ev.ExpandDocument(doc, e.root)
}

func TestSimpleTransclusion(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{"Template:T": "hello"})
	if got := e.expand(t, "say {{T}}!"); got != "say hello!" {
		t.Errorf("got %q", got)
	}
}

// A template whose expansion begins with a table or block-start byte is
// treated as beginning a new line.
func TestImplicitNewline(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{"Template:T": "{| border\n| x |}"})
	got := e.expand(t, "A{{T}}B")
	want := "A\n{| border\n| x |}B"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestImplicitNewlineNotAtLineStart(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{"Template:T": "* item"})
	if got := e.expand(t, "{{T}}"); got != "* item" {
		t.Errorf("line-start transclusion got %q", got)
	}
}

func TestParameterDefault(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{"Template:T": "{{{x|d}}}"})

	if got := e.expand(t, "{{T}}"); got != "d" {
		t.Errorf("no argument: got %q, want default", got)
	}
	if got := e.expand(t, "{{T|x=}}"); got != "" {
		t.Errorf("empty argument: got %q, want empty", got)
	}
	if got := e.expand(t, "{{T|x=v}}"); got != "v" {
		t.Errorf("bound argument: got %q", got)
	}
	// Outside any transclusion the parameter has no frame to bind in
	// and survives as literal source.
	if got := e.expand(t, "{{{x|d}}}"); got != "{{{x|d}}}" {
		t.Errorf("article context: got %q, want literal", got)
	}
}

func TestPositionalParameters(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{"Template:T": "{{{1}}}-{{{2}}}"})
	if got := e.expand(t, "{{T|a|b}}"); got != "a-b" {
		t.Errorf("got %q", got)
	}
}

func TestTemplateRecursion(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{"Template:A": "{{A}}"})
	_, err := e.expandErr("{{A}}")
	var recursion *rstate.TemplateRecursionError
	if !errors.As(err, &recursion) {
		t.Fatalf("err = %v, want TemplateRecursionError", err)
	}
}

func TestMutualRecursion(t *testing.T) {
	// Mutual recursion trips the ancestor guard long before the depth
	// cap.
	e := newEnv(t, "Page", map[string]string{
		"Template:A": "{{B}}",
		"Template:B": "{{A}}",
	})
	_, err := e.expandErr("{{A}}")
	var recursion *rstate.TemplateRecursionError
	if !errors.As(err, &recursion) {
		t.Fatalf("err = %v", err)
	}
}

func TestStackDepthCap(t *testing.T) {
	// A chain of distinct templates deeper than the configured limit
	// trips the depth guard.
	articles := map[string]string{}
	for i := 0; i < 45; i++ {
		articles[fmt.Sprintf("Template:D%d", i)] = fmt.Sprintf("{{D%d}}", i+1)
	}
	articles["Template:D45"] = "bottom"
	e := newEnv(t, "Page", articles)
	_, err := e.expandErr("{{D0}}")
	var overflow *rstate.StackOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("err = %v", err)
	}
}

func TestMissingTemplateRendersLink(t *testing.T) {
	e := newEnv(t, "Page", nil)
	got := e.expand(t, "{{Nope}}")
	if got != "[[Template:Nope]]" {
		t.Errorf("got %q", got)
	}
}

func TestInclusionControl(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{
		"Template:T": "a<noinclude>doc</noinclude><includeonly>b</includeonly>c",
	})
	if got := e.expand(t, "{{T}}"); got != "abc" {
		t.Errorf("transcluded: got %q", got)
	}
	// At the root, the includeonly body is dropped and noinclude kept.
	if got := e.expand(t, "x<noinclude>keep</noinclude><includeonly>drop</includeonly>y"); got != "xkeepy" {
		t.Errorf("root: got %q", got)
	}
}

func TestOnlyInclude(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{
		"Template:T": "outside<onlyinclude>inside</onlyinclude>trailing",
	})
	if got := e.expand(t, "{{T}}"); got != "inside" {
		t.Errorf("got %q", got)
	}
}

func TestSubstEmitsLiteral(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{"Template:T": "body"})
	if got := e.expand(t, "{{subst:T}}"); got != "{{subst:T}}" {
		t.Errorf("got %q", got)
	}
}

func TestSafesubstIsTransparent(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{"Template:T": "body"})
	if got := e.expand(t, "{{safesubst:T}}"); got != "body" {
		t.Errorf("got %q", got)
	}
}

func TestColonCarriesFirstArgument(t *testing.T) {
	e := newEnv(t, "Page", nil)
	if got := e.expand(t, "{{#if:x|yes|no}}"); got != "yes" {
		t.Errorf("#if true: got %q", got)
	}
	if got := e.expand(t, "{{#if:|yes|no}}"); got != "no" {
		t.Errorf("#if false: got %q", got)
	}
}

func TestSwitch(t *testing.T) {
	e := newEnv(t, "Page", nil)
	tests := []struct{ src, want string }{
		{"{{#switch:b|a=1|b=2|c=3}}", "2"},
		{"{{#switch:x|a=1|#default=d}}", "d"},
		{"{{#switch:x|a=1|fallback}}", "fallback"},
		{"{{#switch:a|a|b=shared}}", "shared"},
	}
	for _, tt := range tests {
		if got := e.expand(t, tt.src); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestVariables(t *testing.T) {
	e := newEnv(t, "Main Page", nil)
	if got := e.expand(t, "{{PAGENAME}}"); got != "Main Page" {
		t.Errorf("PAGENAME = %q", got)
	}
	if got := e.expand(t, "{{!}}"); got != "|" {
		t.Errorf("{{!}} = %q", got)
	}
}

// An extension tag becomes a strip marker whose stored content equals
// the handler's returned bytes exactly.
func TestStripMarkerRoundTrip(t *testing.T) {
	e := newEnv(t, "Page", nil)
	got := e.expand(t, "a<nowiki><b></nowiki>z")
	if !strings.Contains(got, "\x7f") {
		t.Fatalf("no marker in %q", got)
	}
	resolved := e.ev.State.Strip.Resolve(got, func(m strip.Marker) string {
		return m.Content
	})
	if resolved != "a&lt;b&gt;z" {
		t.Errorf("resolved = %q", resolved)
	}
}

func TestTackyTemplateWrapped(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{"Template:Infobox": "data"})
	got := e.expand(t, "{{Infobox}}")
	// The body is bracketed by source-scope markers.
	if !strings.Contains(got, "data") || strings.Count(got, "\x7f") < 4 {
		t.Errorf("got %q", got)
	}
}

func TestBaseModePlaceholder(t *testing.T) {
	cfg := wikiconf.Default()
	mem := store.NewMemStore()
	mem.Put(&store.Article{Title: "Template:T", Model: store.ModelWikitext, Body: "x"})
	reg := funcs.NewRegistry()
	funcs.RegisterBuiltins(reg)
	ev := NewEvaluator(context.Background(), cfg, mem, reg, rstate.NewState(), store.NewTemplateCache(4), LoadBase)
	root := rstate.NewRootFrame(title.New(cfg.Namespaces, "Page", cfg.Namespaces.Main()))
	root.Source = "{{T}}"
	doc, err := wikitext.Parse(cfg.Grammar, root.Source, false)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ev.ExpandDocument(doc, root)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "Run scripts") {
		t.Errorf("got %q", got)
	}
}

func TestRedirectResolution(t *testing.T) {
	e := newEnv(t, "Page", map[string]string{
		"Template:New": "target body",
	})
	mem := e.ev.Store.(*store.MemStore)
	mem.Put(&store.Article{Title: "Template:Old", Model: store.ModelWikitext, Redirect: "Template:New"})
	if got := e.expand(t, "{{Old}}"); got != "target body" {
		t.Errorf("got %q", got)
	}
}

func TestCommentsDropped(t *testing.T) {
	e := newEnv(t, "Page", nil)
	if got := e.expand(t, "a<!-- gone -->b"); got != "ab" {
		t.Errorf("got %q", got)
	}
}
