package render

import (
	"context"
	"strings"
	"testing"

	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/wikiconf"
)

func newRenderer(articles map[string]string) (*Renderer, *store.MemStore) {
	mem := store.NewMemStore()
	for name, body := range articles {
		model := store.ModelWikitext
		if strings.HasPrefix(name, "Module:") {
			model = store.ModelModule
		}
		mem.Put(&store.Article{Title: name, Model: model, Body: body})
	}
	return New(wikiconf.Default(), mem), mem
}

func TestRenderSimpleArticle(t *testing.T) {
	r, mem := newRenderer(map[string]string{
		"Foo": "Hello ''world''.\n",
	})
	art, _ := mem.Get(context.Background(), "Foo")
	res, err := r.Render(context.Background(), art, LoadModule)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.HTML, "<i>world</i>") {
		t.Errorf("html = %q", res.HTML)
	}
	if res.RenderID == "" {
		t.Error("missing render id")
	}
}

func TestRenderTransclusionEndToEnd(t *testing.T) {
	r, mem := newRenderer(map[string]string{
		"Foo":        "A{{T|x=in}}B",
		"Template:T": "<{{{x}}}>",
	})
	art, _ := mem.Get(context.Background(), "Foo")
	res, err := r.Render(context.Background(), art, LoadModule)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.HTML, "A&lt;in&gt;B") {
		t.Errorf("html = %q", res.HTML)
	}
}

func TestRenderCategoriesAndOutline(t *testing.T) {
	r, mem := newRenderer(map[string]string{
		"Foo": "== Section ==\ntext\n[[Category:Things]]\n",
	})
	art, _ := mem.Get(context.Background(), "Foo")
	res, err := r.Render(context.Background(), art, LoadModule)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Categories) != 1 || res.Categories[0] != "Things" {
		t.Errorf("categories = %v", res.Categories)
	}
	if len(res.Outline) != 1 || res.Outline[0].Level != 2 || res.Outline[0].ID != "Section" {
		t.Errorf("outline = %+v", res.Outline)
	}
}

func TestRenderBaseModePlaceholder(t *testing.T) {
	r, mem := newRenderer(map[string]string{
		"Foo":        "{{T}}",
		"Template:T": "content",
	})
	art, _ := mem.Get(context.Background(), "Foo")
	res, err := r.Render(context.Background(), art, LoadBase)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.HTML, "Run scripts") {
		t.Errorf("html = %q", res.HTML)
	}
}

func TestRenderRefAndReferences(t *testing.T) {
	r, mem := newRenderer(map[string]string{
		"Foo": "claim<ref>source</ref>\n\n<references/>\n",
	})
	art, _ := mem.Get(context.Background(), "Foo")
	res, err := r.Render(context.Background(), art, LoadModule)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.HTML, `class="reference"`) {
		t.Errorf("html = %q, missing citation marker", res.HTML)
	}
	if !strings.Contains(res.HTML, `<ol class="references">`) {
		t.Errorf("html = %q, missing reference list", res.HTML)
	}
	if !strings.Contains(res.HTML, "source") {
		t.Errorf("html = %q, missing reference body", res.HTML)
	}
}

func TestRenderTemplateStyles(t *testing.T) {
	r, mem := newRenderer(map[string]string{
		"Foo":                "<templatestyles src=\"Style.css\"/>text",
		"Template:Style.css": ".box { color: red }",
	})
	art, _ := mem.Get(context.Background(), "Foo")
	res, err := r.Render(context.Background(), art, LoadModule)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Styles, "color: red") {
		t.Errorf("styles = %q", res.Styles)
	}
}

func TestRenderModuleInvocation(t *testing.T) {
	r, mem := newRenderer(map[string]string{
		"Foo": "{{#invoke:Greet|hi}}",
		"Module:Greet": `
local p = {}
function p.hi(frame)
	return "greetings"
end
return p
`,
	})
	art, _ := mem.Get(context.Background(), "Foo")
	res, err := r.Render(context.Background(), art, LoadModule)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.HTML, "greetings") {
		t.Errorf("html = %q", res.HTML)
	}
	if _, ok := res.Timings["Module:Greet"]; !ok {
		t.Error("module timing not recorded")
	}
}
