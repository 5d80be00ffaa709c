package rstate

import (
	"strings"
	"testing"

	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/token"
)

func literalEval(toks []token.Token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.Text)
	}
	return b.String()
}

func genArgs(pairs ...[2]string) []token.Argument {
	var out []token.Argument
	for _, p := range pairs {
		out = append(out, token.GeneratedArgument(p[0], p[1]))
	}
	return out
}

// Positional indices are assigned in source order among unnamed
// arguments only; a named argument never shifts them.
func TestPositionalIndexAssignment(t *testing.T) {
	kvs := NewKeyCacheKvs(genArgs(
		[2]string{"", "first"},
		[2]string{"name", "named"},
		[2]string{"", "second"},
	))

	if v, ok := kvs.Get("1", literalEval); !ok || v != "first" {
		t.Errorf("arg 1 = %q, %v", v, ok)
	}
	if v, ok := kvs.Get("2", literalEval); !ok || v != "second" {
		t.Errorf("arg 2 = %q, %v", v, ok)
	}
	if v, ok := kvs.Get("name", literalEval); !ok || v != "named" {
		t.Errorf("named = %q, %v", v, ok)
	}
	if _, ok := kvs.Get("3", literalEval); ok {
		t.Error("arg 3 should not exist")
	}
}

// Named values are trimmed on expansion; positional values are not.
func TestArgumentTrimming(t *testing.T) {
	kvs := NewKeyCacheKvs(genArgs(
		[2]string{"", "  spaced  "},
		[2]string{"k", "  spaced  "},
	))
	if v, _ := kvs.Get("1", literalEval); v != "  spaced  " {
		t.Errorf("positional = %q, want untrimmed", v)
	}
	if v, _ := kvs.Get("k", literalEval); v != "spaced" {
		t.Errorf("named = %q, want trimmed", v)
	}
}

func TestPeekStates(t *testing.T) {
	kvs := NewKeyCacheKvs(genArgs([2]string{"", "v"}))

	if _, state := kvs.Peek("1"); state != CachedUnknown {
		t.Errorf("pre-resolution peek = %v, want unknown", state)
	}
	kvs.Get("1", literalEval)
	if v, state := kvs.Peek("1"); state != CachedPresent || v != "v" {
		t.Errorf("post-get peek = %q, %v", v, state)
	}
	if _, state := kvs.Peek("absent"); state != CachedNil {
		t.Errorf("absent peek = %v, want nil", state)
	}
}

func TestAllCached(t *testing.T) {
	kvs := NewKeyCacheKvs(genArgs([2]string{"", "a"}, [2]string{"k", "b"}))
	if _, ok := kvs.AllCached(); ok {
		t.Error("partial cache reported as complete")
	}
	kvs.Get("1", literalEval)
	if _, ok := kvs.AllCached(); ok {
		t.Error("half cache reported as complete")
	}
	kvs.Get("k", literalEval)
	all, ok := kvs.AllCached()
	if !ok || all["1"] != "a" || all["k"] != "b" {
		t.Errorf("AllCached = %v, %v", all, ok)
	}
}

func TestRecursionGuard(t *testing.T) {
	tbl := title.NewNamespaceTable(title.DefaultNamespaces())
	root := NewRootFrame(title.New(tbl, "Page", nil))
	a := root.Push(title.New(tbl, "Template:A", nil), "", nil)
	b := a.Push(title.New(tbl, "Template:B", nil), "", nil)

	if !b.HasAncestor(title.New(tbl, "Template:A", nil)) {
		t.Error("A should be an ancestor of B")
	}
	if b.HasAncestor(title.New(tbl, "Page", nil)) {
		t.Error("the root frame is exempt from the guard")
	}
	if b.Depth != 2 {
		t.Errorf("depth = %d", b.Depth)
	}
}

func TestChildFrames(t *testing.T) {
	tbl := title.NewNamespaceTable(title.DefaultNamespaces())
	root := NewRootFrame(title.New(tbl, "Page", nil))
	child := root.NewChild("frame2", title.New(tbl, "Template:X", nil))
	got, ok := root.ChildByName("frame2")
	if !ok || got != child {
		t.Error("child frame not found by name")
	}
}

func TestReferenceStore(t *testing.T) {
	rs := NewReferenceStore()
	r1 := rs.Add("", "a", "first", "")
	r2 := rs.Add("", "", "second", "")
	again := rs.Add("", "a", "ignored", "")

	if r1.ID != 1 || r2.ID != 2 {
		t.Errorf("ids = %d, %d", r1.ID, r2.ID)
	}
	if again != r1 {
		t.Error("re-citing a named ref should return the original")
	}

	rs.Add("", "a", "", " appended")
	if r1.Content != "first appended" {
		t.Errorf("follow append = %q", r1.Content)
	}

	group := rs.ByGroup("")
	if len(group) != 2 {
		t.Errorf("group size = %d", len(group))
	}
}
