package emit

import (
	"context"
	"strings"
	"testing"

	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/strip"
	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/wikiconf"
	"github.com/mwcore/wikirender/wikitext"
)

type env struct {
	cfg   *wikiconf.Config
	mem   *store.MemStore
	state *rstate.State
}

func newEnv() *env {
	return &env{
		cfg:   wikiconf.Default(),
		mem:   store.NewMemStore(),
		state: rstate.NewState(),
	}
}

func (e *env) render(t *testing.T, pageTitle, src string) string {
	t.Helper()
	doc, err := wikitext.Parse(e.cfg.Grammar, src, false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	root := rstate.NewRootFrame(title.New(e.cfg.Namespaces, pageTitle, e.cfg.Namespaces.Main()))
	root.Source = src
	em := New(context.Background(), e.cfg, e.mem, e.state, nil, nil, root)
	html, err := em.Render(doc.Tokens)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return html
}

func TestBoldItalicBalancing(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "''a '''b'' c'''")
	want := "<p><i>a <b>b</i> c</b></p>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParagraphBreaks(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "one\n\ntwo")
	want := "<p>one</p>\n<p>two</p>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSingleNewlineStaysInParagraph(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "one\ntwo")
	if strings.Count(got, "<p>") != 1 {
		t.Errorf("got %q, want a single paragraph", got)
	}
}

func TestCategoryAbsorption(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "before\n[[Category:X]]\nafter\n")
	want := "<p>before</p>\n<p>after</p>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if len(e.state.CategoryOrder) != 1 || e.state.CategoryOrder[0] != "X" {
		t.Errorf("categories = %v", e.state.CategoryOrder)
	}
}

func TestEscapedCategoryIsALink(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "[[:Category:X]]")
	if len(e.state.CategoryOrder) != 0 {
		t.Error("escaped category was absorbed")
	}
	if !strings.Contains(got, "<a ") {
		t.Errorf("got %q, want a link", got)
	}
}

func TestSelfLink(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Foo", "[[Foo|bar]]")
	want := `<p><a class="mw-selflink selflink">bar</a></p>`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRedlink(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "[[Missing]]")
	if !strings.Contains(got, "mode=edit&redlink=1") {
		t.Errorf("got %q, want a redlink query", got)
	}
}

func TestExistingLinkHasNoRedlink(t *testing.T) {
	e := newEnv()
	e.mem.Put(&store.Article{Title: "Present", Model: store.ModelWikitext, Body: "x"})
	got := e.render(t, "Page", "[[Present]]")
	if strings.Contains(got, "redlink") {
		t.Errorf("got %q", got)
	}
}

func TestLinkTrail(t *testing.T) {
	e := newEnv()
	e.mem.Put(&store.Article{Title: "Cat", Model: store.ModelWikitext, Body: "x"})
	got := e.render(t, "Page", "[[Cat]]s")
	if !strings.Contains(got, ">Cats</a>") {
		t.Errorf("got %q, want fused trail", got)
	}
}

func TestExternalLinkOrdinals(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "[https://example.com/a] and [https://example.com/b]")
	if !strings.Contains(got, "[1]") || !strings.Contains(got, "[2]") {
		t.Errorf("got %q, want ordinals", got)
	}
}

func TestListNesting(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "* a\n* b\n** c\n")
	want := "<ul><li>a</li><li>b<ul><li>c</li></ul></li></ul>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// Every <li> must sit directly in a list element; every <dt>/<dd> in a
// <dl>.
func TestDefinitionListSwap(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "; term\n: detail\n")
	want := "<dl><dt>term</dt><dd>detail</dd></dl>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestHeadingIDsCollide(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "== Same ==\n== Same ==\n")
	if !strings.Contains(got, `id="Same"`) || !strings.Contains(got, `id="Same_2"`) {
		t.Errorf("got %q", got)
	}
}

func TestTypographicQuotes(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", `he said "hi" then`)
	if !strings.Contains(got, "“hi”") {
		t.Errorf("got %q", got)
	}
}

func TestQuotesLiteralInCode(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", `<code>"x"</code>`)
	if !strings.Contains(got, `"x"`) {
		t.Errorf("got %q, want literal quotes inside code", got)
	}
}

func TestTableStructure(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "{|\n|-\n| a\n| b\n|}\n")
	for _, part := range []string{"<table", "<tr", "<td", "</table>"} {
		if !strings.Contains(got, part) {
			t.Errorf("got %q, missing %s", got, part)
		}
	}
}

// A cell with no explicit row still gets fostered into a <tr>.
func TestImplicitTableRow(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "{|\n| orphan\n|}\n")
	if !strings.Contains(got, "<tr") {
		t.Errorf("got %q", got)
	}
}

func TestInlineStripMarker(t *testing.T) {
	e := newEnv()
	sentinel := e.state.Strip.Insert(strip.Inline, "<b>kept</b>")
	got := e.render(t, "Page", "x "+sentinel+" y")
	if !strings.Contains(got, "<b>kept</b>") {
		t.Errorf("got %q", got)
	}
}

func TestBlockStripMarkerClosesParagraph(t *testing.T) {
	e := newEnv()
	sentinel := e.state.Strip.Insert(strip.Block, "<div>block</div>")
	got := e.render(t, "Page", "text "+sentinel)
	if !strings.Contains(got, "</p>") {
		t.Errorf("got %q, want paragraph closed before block", got)
	}
	if !strings.Contains(got, "<div>block</div>") {
		t.Errorf("got %q", got)
	}
}

func TestUnknownStripMarkerIsFatal(t *testing.T) {
	e := newEnv()
	doc, err := wikitext.Parse(e.cfg.Grammar, "\x7f'\"`UNIQ-99-QINU`\"'\x7f", false)
	if err != nil {
		t.Fatal(err)
	}
	root := rstate.NewRootFrame(title.New(e.cfg.Namespaces, "Page", e.cfg.Namespaces.Main()))
	root.Source = "\x7f'\"`UNIQ-99-QINU`\"'\x7f"
	em := New(context.Background(), e.cfg, e.mem, e.state, nil, nil, root)
	if _, err := em.Render(doc.Tokens); err == nil {
		t.Fatal("expected an unknown-marker error")
	}
}

func TestHorizontalRule(t *testing.T) {
	e := newEnv()
	got := e.render(t, "Page", "a\n----\nb")
	if !strings.Contains(got, "<hr>") {
		t.Errorf("got %q", got)
	}
}
