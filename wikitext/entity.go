package wikitext

import "html"

// decodeEntity decodes a single HTML/XML entity reference (e.g. "&amp;",
// "&#39;", "&#x27;") using the standard library's entity table, the same
// source of truth html.UnescapeString draws from. It reports ok=false for anything that isn't exactly
// one decoded rune, i.e. not a recognised single-entity reference.
func decodeEntity(raw string) (rune, bool) {
	if len(raw) < 3 || raw[0] != '&' || raw[len(raw)-1] != ';' {
		return 0, false
	}
	decoded := html.UnescapeString(raw)
	runes := []rune(decoded)
	if len(runes) != 1 || decoded == raw {
		return 0, false
	}
	return runes[0], true
}
