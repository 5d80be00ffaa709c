package pattern

import (
	"strings"
	"testing"
)

func TestFindBasic(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		pattern    string
		init       int
		wantStart  int
		wantEnd    int
		wantNoHit  bool
	}{
		{name: "plain literal", src: "hello world", pattern: "world", wantStart: 6, wantEnd: 11},
		{name: "class run", src: "abc123", pattern: "%d+", wantStart: 3, wantEnd: 6},
		{name: "unicode letters", src: "Héllo", pattern: "%a+", wantStart: 0, wantEnd: 5},
		{name: "anchored hit", src: "abc", pattern: "^ab", wantStart: 0, wantEnd: 2},
		{name: "anchored miss", src: "xabc", pattern: "^ab", wantNoHit: true},
		{name: "dollar anchor", src: "abc", pattern: "bc$", wantStart: 1, wantEnd: 3},
		{name: "set negation", src: "aXb", pattern: "[^a-z]", wantStart: 1, wantEnd: 2},
		{name: "lazy quantifier", src: "<a><b>", pattern: "<.->", wantStart: 0, wantEnd: 3},
		{name: "balanced", src: "x(a(b)c)y", pattern: "%b()", wantStart: 1, wantEnd: 8},
		{name: "frontier", src: "THE (quick) fox", pattern: "%f[%a]%a+", wantStart: 0, wantEnd: 3},
		{name: "init offset", src: "aa", pattern: "a", init: 1, wantStart: 1, wantEnd: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Find(Runes(tt.src), tt.pattern, tt.init)
			if err != nil {
				t.Fatalf("Find(%q, %q) error: %v", tt.src, tt.pattern, err)
			}
			if tt.wantNoHit {
				if m != nil {
					t.Fatalf("Find(%q, %q) = [%d,%d), want no match", tt.src, tt.pattern, m.Start, m.End)
				}
				return
			}
			if m == nil {
				t.Fatalf("Find(%q, %q) = no match", tt.src, tt.pattern)
			}
			if m.Start != tt.wantStart || m.End != tt.wantEnd {
				t.Errorf("Find(%q, %q) = [%d,%d), want [%d,%d)",
					tt.src, tt.pattern, m.Start, m.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

// A successful match of an anchored pattern always begins at the search
// start.
func TestAnchoredMatchStartsAtInit(t *testing.T) {
	srcs := []string{"abcabc", "ab", "xxaby", "a", ""}
	for _, s := range srcs {
		for init := 0; init <= len(s); init++ {
			m, err := Find(Runes(s), "^ab", init)
			if err != nil {
				t.Fatal(err)
			}
			if m != nil && m.Start != init {
				t.Errorf("anchored match of %q at init %d started at %d", s, init, m.Start)
			}
		}
	}
}

// The number of captures equals the number of '(' in the pattern, with
// '()' producing a position capture.
func TestCaptureCount(t *testing.T) {
	tests := []struct {
		src, pattern string
		count        int
	}{
		{"key=value", "(%w+)=(%w+)", 2},
		{"abc", "(a)((b)(c))", 4},
		{"abc", "a()bc", 1},
		{"abc", "abc", 0},
	}
	for _, tt := range tests {
		m, err := Find(Runes(tt.src), tt.pattern, 0)
		if err != nil {
			t.Fatal(err)
		}
		if m == nil {
			t.Fatalf("no match for %q", tt.pattern)
		}
		if len(m.Captures) != tt.count {
			t.Errorf("pattern %q: %d captures, want %d", tt.pattern, len(m.Captures), tt.count)
		}
	}
}

func TestCaptureValues(t *testing.T) {
	src := Runes("key=value")
	m, err := Find(src, "(%w+)=(%w+)", 0)
	if err != nil || m == nil {
		t.Fatalf("Find: %v, %v", m, err)
	}
	if got := m.Group(src, 0); got != "key" {
		t.Errorf("group 0 = %q, want %q", got, "key")
	}
	if got := m.Group(src, 1); got != "value" {
		t.Errorf("group 1 = %q, want %q", got, "value")
	}
}

func TestPositionCapture(t *testing.T) {
	m, err := Find(Runes("abc"), "b()", 0)
	if err != nil || m == nil {
		t.Fatalf("Find: %v, %v", m, err)
	}
	if !m.Captures[0].IsPosition || m.Captures[0].Start != 2 {
		t.Errorf("position capture = %+v, want position 2", m.Captures[0])
	}
}

func TestBackreference(t *testing.T) {
	m, err := Find(Runes("abcabc"), "(abc)%1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.End != 6 {
		t.Fatalf("backreference match = %+v, want [0,6)", m)
	}
	if m2, _ := Find(Runes("abcabd"), "(abc)%1", 0); m2 != nil {
		t.Error("backreference matched mismatched text")
	}
}

func TestGmatch(t *testing.T) {
	next := Gmatch(Runes("one two three"), "%a+")
	var words []string
	src := Runes("one two three")
	for {
		m, err := next()
		if err != nil {
			t.Fatal(err)
		}
		if m == nil {
			break
		}
		words = append(words, Slice(src, m.Start, m.End))
	}
	if strings.Join(words, ",") != "one,two,three" {
		t.Errorf("gmatch words = %v", words)
	}
}

func TestGsub(t *testing.T) {
	out, n, err := Gsub(Runes("hello world"), "o", -1, func(groups []string) string {
		return "0"
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "hell0 w0rld" || n != 2 {
		t.Errorf("gsub = %q, %d", out, n)
	}
}

func TestGsubLimit(t *testing.T) {
	out, n, err := Gsub(Runes("aaa"), "a", 2, func([]string) string { return "b" })
	if err != nil {
		t.Fatal(err)
	}
	if out != "bba" || n != 2 {
		t.Errorf("gsub limit = %q, %d", out, n)
	}
}

func TestUppercaseClassInverts(t *testing.T) {
	m, err := Find(Runes("abc123"), "%A+", 0)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Start != 3 || m.End != 6 {
		t.Fatalf("%%A+ match = %+v, want [3,6)", m)
	}
}

func TestTooManyCaptures(t *testing.T) {
	pat := strings.Repeat("(a)", 33)
	src := Runes(strings.Repeat("a", 33))
	if _, err := Find(src, pat, 0); err == nil {
		t.Error("expected a capture-limit error")
	}
}

func FuzzFind(f *testing.F) {
	f.Add("hello", "%a+")
	f.Add("a(b)c", "%b()")
	f.Add("", "^$")
	f.Add("x", "[")
	f.Fuzz(func(t *testing.T, src, pat string) {
		if len(src) > 1024 || len(pat) > 128 {
			t.Skip()
		}
		// Must never panic; errors are fine.
		_, _ = Find(Runes(src), pat, 0)
	})
}
