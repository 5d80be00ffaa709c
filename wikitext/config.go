package wikitext

import (
	"regexp"
	"strings"
)

// Config is the build-time immutable wikitext grammar configuration. It is
// loaded once by wikiconf and threaded through every Parser.
type Config struct {
	// URLSchemes is the set of recognised protocol prefixes for bare-URL
	// magic links (e.g. "http://", "https://", "ftp://", "mailto:").
	URLSchemes []string
	// AnnotationTags are the names recognised as <tvar>-style
	// StartAnnotation/EndAnnotation tokens.
	AnnotationTags []string
	// ExtensionTags are the names dispatched as Extension tokens rather
	// than being treated as the generic HTML-subset StartTag/EndTag.
	ExtensionTags []string
	// HTMLTags is the whitelist of HTML element names recognised as
	// StartTag/EndTag tokens; anything else stays literal text.
	HTMLTags []string
	// VoidHTMLTags are HTML tags treated as always self-closing.
	VoidHTMLTags []string

	schemeAlt      string
	annotationSet  map[string]bool
	extensionSet   map[string]bool
	htmlSet        map[string]bool
	voidSet        map[string]bool
	headingTrailRE *regexp.Regexp
}

// DefaultConfig returns the standard MediaWiki-ish grammar configuration.
func DefaultConfig() *Config {
	c := &Config{
		URLSchemes: []string{
			"http://", "https://", "ftp://", "ftps://", "mailto:", "news:",
			"gopher://", "irc://", "ircs://", "git://", "svn://", "sftp://",
			"worldwind://", "tel:", "xmpp:",
		},
		AnnotationTags: []string{"tvar"},
		ExtensionTags: []string{
			"nowiki", "pre", "ref", "references", "section", "templatestyles",
			"syntaxhighlight", "source", "indicator", "poem", "timeline",
			"math", "templatedata", "gallery", "inputbox", "categorytree",
		},
		HTMLTags: []string{
			"abbr", "b", "bdi", "bdo", "big", "blockquote", "br", "caption",
			"center", "cite", "code", "data", "dd", "del", "dfn", "div",
			"dl", "dt", "em", "font", "h1", "h2", "h3", "h4", "h5", "h6",
			"hr", "i", "ins", "kbd", "li", "mark", "ol", "p", "q", "rp",
			"rt", "ruby", "s", "samp", "small", "span", "strike", "strong",
			"sub", "sup", "table", "tbody", "td", "tfoot", "th", "thead",
			"time", "tr", "tt", "u", "ul", "var", "wbr",
		},
		VoidHTMLTags: []string{
			"area", "base", "br", "col", "embed", "hr", "img", "input",
			"link", "meta", "param", "source", "track", "wbr",
		},
	}
	c.build()
	return c
}

func (c *Config) build() {
	c.annotationSet = toSet(c.AnnotationTags)
	c.extensionSet = toSet(c.ExtensionTags)
	c.htmlSet = toSet(c.HTMLTags)
	c.voidSet = toSet(c.VoidHTMLTags)

	// A heading line may end with whitespace, HTML comments, annotation
	// end tags, and inclusion-control end tags; the alternation is built
	// once per configuration.
	alts := []string{`[ \t\r]`, `<!--.*?-->`}
	for _, tag := range c.AnnotationTags {
		alts = append(alts, `</`+regexp.QuoteMeta(strings.ToLower(tag))+`[ \t]*>`)
	}
	for _, tag := range []string{"noinclude", "includeonly", "onlyinclude"} {
		alts = append(alts, `</`+tag+`[ \t]*>`)
	}
	c.headingTrailRE = regexp.MustCompile(`(?is)(?:` + strings.Join(alts, "|") + `)*$`)
}

// trimHeadingTrail strips the ignorable suffix of a heading line before
// the trailing "=" run is measured.
func (c *Config) trimHeadingTrail(line string) string {
	loc := c.headingTrailRE.FindStringIndex(line)
	if loc == nil {
		return line
	}
	return line[:loc[0]]
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = true
	}
	return m
}

// IsAnnotationTag reports whether name (case-folded) is a configured
// annotation tag.
func (c *Config) IsAnnotationTag(name string) bool {
	return c.annotationSet[strings.ToLower(name)]
}

// IsExtensionTag reports whether name (case-folded) is dispatched as an
// extension tag rather than a plain HTML tag.
func (c *Config) IsExtensionTag(name string) bool {
	return c.extensionSet[strings.ToLower(name)]
}

// IsAllowedHTMLTag reports whether name (case-folded) is in the HTML
// subset whitelist.
func (c *Config) IsAllowedHTMLTag(name string) bool {
	return c.htmlSet[strings.ToLower(name)]
}

// IsVoidHTMLTag reports whether name (case-folded) is a void HTML5
// element that never has a matching end tag or content.
func (c *Config) IsVoidHTMLTag(name string) bool {
	return c.voidSet[strings.ToLower(name)]
}

// MatchScheme returns the longest configured URL scheme that is a prefix
// of s, or "" if none match. It drives magic-link recognition by scanning
// URLSchemes in turn on every call; no alternation is precomputed.
func (c *Config) MatchScheme(s string) string {
	best := ""
	for _, scheme := range c.URLSchemes {
		if strings.HasPrefix(s, scheme) && len(scheme) > len(best) {
			best = scheme
		}
	}
	return best
}
