package funcs

import (
	"strings"
	"testing"
)

func TestAnchorEncode(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Simple", "Simple"},
		{"Two words", "Two_words"},
		{"a:b.c-d_e", "a:b.c-d_e"},
		{"50%", "50.25"},
		{"é", ".C3.A9"},
	}
	for _, tt := range tests {
		if got := AnchorEncode(tt.in); got != tt.want {
			t.Errorf("AnchorEncode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSerialiseTag(t *testing.T) {
	got := serialiseTag("ref", map[string]string{"name": "a"}, "body", true)
	if got != `<ref name="a">body</ref>` {
		t.Errorf("got %q", got)
	}
	got = serialiseTag("references", nil, "", false)
	if got != "<references/>" {
		t.Errorf("got %q", got)
	}
}

func TestRegistryCaseFolding(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunction("lc", func(IndexedArgs) (string, error) { return "", nil })
	if !reg.IsFunction("LC") {
		t.Error("function lookup should fold case")
	}
	if !reg.IsFunction("#anything") {
		t.Error("names starting with # are unconditionally function hooks")
	}
	reg.RegisterTag("Ref", func(ExtensionArgs) (OutputMode, string, error) { return ModeEmpty, "", nil })
	if !reg.IsTag("REF") {
		t.Error("tag lookup should fold case")
	}
}

func TestErrorSpanSanitised(t *testing.T) {
	got := errorSpan(`bad <script>alert(1)</script> thing`)
	if strings.Contains(got, "<script>") {
		t.Errorf("got %q", got)
	}
	if !strings.HasPrefix(got, `<span class="error">`) {
		t.Errorf("got %q", got)
	}
}

func TestChangeFirst(t *testing.T) {
	if got := changeFirst("abc", strings.ToUpper); got != "Abc" {
		t.Errorf("changeFirst = %q", got)
	}
	if got := changeFirst("", strings.ToUpper); got != "" {
		t.Errorf("changeFirst empty = %q", got)
	}
}

func TestURLEncodeQuery(t *testing.T) {
	if got := urlEncodeQuery("a b&c"); got != "a+b%26c" {
		t.Errorf("got %q", got)
	}
}
