package title

import "testing"

func testTable() *NamespaceTable {
	return NewNamespaceTable(DefaultNamespaces())
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Foo bar",
		"foo_bar",
		"  spaced  out  ",
		"under__scores",
		"mixed _ and  spaces",
		"‎bidi‏ marks‪",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeFolding(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a_b", "a b"},
		{"a__b", "a b"},
		{"a _ b", "a b"},
		{"  a  ", "a"},
		{"a‎b", "ab"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewSplitsNamespace(t *testing.T) {
	tbl := testTable()
	tt := New(tbl, "Template:Infobox person", nil)
	if tt.Namespace().ID != NSTemplate {
		t.Errorf("namespace id = %d, want %d", tt.Namespace().ID, NSTemplate)
	}
	if tt.Text() != "Infobox person" {
		t.Errorf("text = %q", tt.Text())
	}
}

func TestNewFirstLetterFold(t *testing.T) {
	tbl := testTable()
	tt := New(tbl, "foo", nil)
	if tt.Text() != "Foo" {
		t.Errorf("text = %q, want %q", tt.Text(), "Foo")
	}
}

func TestFragment(t *testing.T) {
	tbl := testTable()
	tt := New(tbl, "Foo#Section one", nil)
	if tt.Text() != "Foo" || tt.Fragment() != "Section one" {
		t.Errorf("text=%q fragment=%q", tt.Text(), tt.Fragment())
	}
}

func TestTalkSubjectIDs(t *testing.T) {
	tbl := testTable()
	talk := tbl.ByID(NSTalk)
	if !talk.IsTalk() {
		t.Error("Talk should be a talk namespace")
	}
	if talk.SubjectID() != NSMain {
		t.Errorf("Talk subject = %d", talk.SubjectID())
	}
	main := tbl.ByID(NSMain)
	if main.TalkID() != NSTalk {
		t.Errorf("Main talk = %d", main.TalkID())
	}
	if main.AssociatedID() != NSTalk || talk.AssociatedID() != NSMain {
		t.Error("associated ids do not round-trip")
	}
}

func TestSubpageAccessors(t *testing.T) {
	tbl := testTable()
	tt := New(tbl, "User:Alice/Drafts/One", nil)
	if got := tt.BaseText(); got != "Alice/Drafts" {
		t.Errorf("BaseText = %q", got)
	}
	if got := tt.RootText(); got != "Alice" {
		t.Errorf("RootText = %q", got)
	}
	if got := tt.SubpageText(); got != "One" {
		t.Errorf("SubpageText = %q", got)
	}
}

func TestPartialURL(t *testing.T) {
	tbl := testTable()
	tt := New(tbl, "A b/c", nil)
	got := tt.PartialURL()
	if got == "" || got == "A b/c" {
		t.Errorf("PartialURL = %q, want percent-encoded form", got)
	}
}

func TestIsValid(t *testing.T) {
	valid := []string{"Foo", "Template:Bar", "A b"}
	invalid := []string{"", "#", "a<b", "a|b", "a{b", "a[b"}
	for _, s := range valid {
		if !IsValid(s) {
			t.Errorf("IsValid(%q) = false", s)
		}
	}
	for _, s := range invalid {
		if IsValid(s) {
			t.Errorf("IsValid(%q) = true", s)
		}
	}
}
