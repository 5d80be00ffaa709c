package strip

import "testing"

func TestInsertAndResolve(t *testing.T) {
	r := NewRegistry()
	m1 := r.Insert(NoWiki, "<not a template>")
	m2 := r.Insert(Block, "<gallery rendering>")

	src := "before " + m1 + " middle " + m2 + " after"
	got := r.Resolve(src, func(m Marker) string { return m.Content })
	want := "before <not a template> middle <gallery rendering> after"
	if got != want {
		t.Fatalf("Resolve() = %q, want %q", got, want)
	}
}

func TestIsMarkerOnly(t *testing.T) {
	r := NewRegistry()
	m := r.Insert(Block, "x")
	if idx, ok := r.IsMarkerOnly(m); !ok || idx != 0 {
		t.Fatalf("IsMarkerOnly(%q) = (%d, %v), want (0, true)", m, idx, ok)
	}
	if _, ok := r.IsMarkerOnly("prefix " + m); ok {
		t.Fatalf("IsMarkerOnly should reject surrounding text")
	}
}

func TestFindHandlesGarbageNumber(t *testing.T) {
	r := NewRegistry()
	m := r.Insert(Inline, "ref-1")
	garbage := prefix + "notanumber" + suffix
	s := garbage + m
	start, end, idx, ok := r.Find(s, 0)
	if !ok || idx != 0 {
		t.Fatalf("Find() = (%d, %d, %d, %v), want idx 0", start, end, idx, ok)
	}
}
