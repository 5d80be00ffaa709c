package wikitext

import (
	"strings"
	"testing"

	"github.com/mwcore/wikirender/strip"
	"github.com/mwcore/wikirender/token"
)

func parse(t *testing.T, src string) Result {
	t.Helper()
	res, err := Parse(DefaultConfig(), src, false)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return res
}

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, tk := range toks {
		out[i] = tk.Kind
	}
	return out
}

// Concatenating terminal token spans in emission order reproduces the
// source.
func TestSpanCoverage(t *testing.T) {
	srcs := []string{
		"plain text",
		"text with ''italic'' and '''bold'''",
		"a [[link]] and {{template|arg}}",
		"== Heading ==\nbody\n* item\n",
		"<!-- comment -->after",
	}
	for _, src := range srcs {
		res := parse(t, src)
		var covered strings.Builder
		var walk func(toks []token.Token) int
		last := 0
		walk = func(toks []token.Token) int {
			for _, tk := range toks {
				if tk.Span.Start > last {
					covered.WriteString(src[last:tk.Span.Start])
				}
				covered.WriteString(src[tk.Span.Start:tk.Span.End])
				last = tk.Span.End
			}
			return last
		}
		walk(res.Tokens)
		if last < len(src) {
			covered.WriteString(src[last:])
		}
		if covered.String() != src {
			t.Errorf("span coverage of %q = %q", src, covered.String())
		}
	}
}

func TestHeadingLevels(t *testing.T) {
	tests := []struct {
		src   string
		level int
	}{
		{"== H ==", 2},
		{"=== H ===", 3},
		{"== H ===", 2},  // min of both runs
		{"==== H ==", 2}, // min of both runs
		{"====== H ======", 6},
	}
	for _, tt := range tests {
		res := parse(t, tt.src)
		if len(res.Tokens) == 0 || res.Tokens[0].Kind != token.Heading {
			t.Fatalf("%q did not parse as a heading: %v", tt.src, kinds(res.Tokens))
		}
		if res.Tokens[0].Level != tt.level {
			t.Errorf("%q level = %d, want %d", tt.src, res.Tokens[0].Level, tt.level)
		}
	}
}

func TestHeadingTrailingComment(t *testing.T) {
	res := parse(t, "== H == <!-- note -->\n")
	if len(res.Tokens) == 0 || res.Tokens[0].Kind != token.Heading {
		t.Fatalf("heading with trailing comment: %v", kinds(res.Tokens))
	}
}

func TestQuotePositions(t *testing.T) {
	// A quote run after a single non-space character following a space
	// is Orphan; after a space it is Space; otherwise Normal.
	res := parse(t, "a l'''a")
	var found *token.Token
	for i := range res.Tokens {
		if res.Tokens[i].Kind == token.TextStyleTok {
			found = &res.Tokens[i]
		}
	}
	if found == nil {
		t.Fatal("no TextStyle token")
	}
	if found.Position != token.Orphan {
		t.Errorf("position = %v, want Orphan", found.Position)
	}

	res = parse(t, "word '''b")
	found = nil
	for i := range res.Tokens {
		if res.Tokens[i].Kind == token.TextStyleTok {
			found = &res.Tokens[i]
		}
	}
	if found == nil || found.Position != token.Space {
		t.Errorf("space-preceded run: %+v", found)
	}
}

func TestTemplateArgumentSplit(t *testing.T) {
	res := parse(t, "{{t|a=1|b}}")
	if len(res.Tokens) != 1 || res.Tokens[0].Kind != token.Template {
		t.Fatalf("tokens: %v", kinds(res.Tokens))
	}
	args := res.Tokens[0].Args
	if len(args) != 2 {
		t.Fatalf("args = %d", len(args))
	}
	if !args[0].HasName() {
		t.Error("first argument should be named")
	}
	if args[1].HasName() {
		t.Error("second argument should be positional")
	}
}

// An '=' nested inside inner braces or brackets is not a delimiter.
func TestNestedEqualsNotDelimiter(t *testing.T) {
	res := parse(t, "{{t|[[a=b]]}}")
	args := res.Tokens[0].Args
	if len(args) != 1 || args[0].HasName() {
		t.Fatalf("nested = should not split: %+v", args)
	}
}

func TestUnclosedTemplateRecovers(t *testing.T) {
	res := parse(t, "a {{unclosed")
	for _, tk := range res.Tokens {
		if tk.Kind == token.Template {
			t.Fatal("unclosed template should recover to text")
		}
	}
}

func TestParameterDefault(t *testing.T) {
	res := parse(t, "{{{x|d}}}")
	if len(res.Tokens) != 1 || res.Tokens[0].Kind != token.Parameter {
		t.Fatalf("tokens: %v", kinds(res.Tokens))
	}
	if !res.Tokens[0].HasDefault {
		t.Error("missing default")
	}
}

func TestMagicLinks(t *testing.T) {
	res := parse(t, "see https://example.com/x now")
	found := false
	for _, tk := range res.Tokens {
		if tk.Kind == token.Autolink {
			found = true
		}
	}
	if !found {
		t.Error("bare URL did not produce an Autolink")
	}
}

func TestInclusionControlTokens(t *testing.T) {
	res := parse(t, "a<noinclude>b</noinclude>c")
	got := kinds(res.Tokens)
	want := []token.Kind{token.Text, token.StartInclude, token.Text, token.EndInclude, token.Text}
	if len(got) != len(want) {
		t.Fatalf("kinds = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", got, want)
		}
	}
}

func TestOnlyIncludeFlag(t *testing.T) {
	res := parse(t, "x<onlyinclude>y</onlyinclude>z")
	if !res.HasOnlyInclude {
		t.Error("HasOnlyInclude not set")
	}
}

// A strip-marker sentinel in reparsed expansion output is a first-class
// terminal.
func TestStripMarkerTerminal(t *testing.T) {
	reg := strip.NewRegistry()
	sentinel := reg.Insert(strip.Inline, "<b>hi</b>")
	res := parse(t, "before "+sentinel+" after")
	var marker *token.Token
	for i := range res.Tokens {
		if res.Tokens[i].Kind == token.StripMarker {
			marker = &res.Tokens[i]
		}
	}
	if marker == nil {
		t.Fatal("no StripMarker token")
	}
	if marker.MarkerIndex != 0 {
		t.Errorf("marker index = %d", marker.MarkerIndex)
	}
}

func TestTableTokens(t *testing.T) {
	res := parse(t, "{| class=\"wikitable\"\n|-\n| cell\n|}\n")
	got := kinds(res.Tokens)
	var sawStart, sawRow, sawData, sawEnd bool
	for _, k := range got {
		switch k {
		case token.TableStart:
			sawStart = true
		case token.TableRow:
			sawRow = true
		case token.TableData:
			sawData = true
		case token.TableEnd:
			sawEnd = true
		}
	}
	if !sawStart || !sawRow || !sawData || !sawEnd {
		t.Errorf("table kinds = %v", got)
	}
}

func TestExtensionTagBody(t *testing.T) {
	res := parse(t, "<nowiki>''raw''</nowiki>")
	if len(res.Tokens) == 0 || res.Tokens[0].Kind != token.Extension {
		t.Fatalf("kinds: %v", kinds(res.Tokens))
	}
	tk := res.Tokens[0]
	if !tk.HasExtContent {
		t.Fatal("extension has no content span")
	}
	if got := tk.ExtContent.Slice("<nowiki>''raw''</nowiki>"); got != "''raw''" {
		t.Errorf("content = %q", got)
	}
}

func FuzzParse(f *testing.F) {
	f.Add("plain")
	f.Add("{{t|a=1}}")
	f.Add("[[link|text]]trail")
	f.Add("{| \n| x\n|}")
	f.Add("'''''mixed'''''")
	f.Add("<nowiki>x")
	f.Add("{{{{{{{{")
	f.Fuzz(func(t *testing.T, src string) {
		if len(src) > 4096 {
			t.Skip()
		}
		// The parser recovers locally; it must never panic.
		_, _ = Parse(DefaultConfig(), src, false)
	})
}
