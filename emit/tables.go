package emit

import (
	"golang.org/x/net/html/atom"
)

// phrasingAtoms is the HTML5 phrasing-content set, keyed by atom so the
// hot path avoids string hashing.
var phrasingAtoms = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.Audio: true, atom.B: true,
	atom.Bdi: true, atom.Bdo: true, atom.Br: true, atom.Button: true,
	atom.Canvas: true, atom.Cite: true, atom.Code: true, atom.Data: true,
	atom.Datalist: true, atom.Del: true, atom.Dfn: true, atom.Em: true,
	atom.Embed: true, atom.I: true, atom.Iframe: true, atom.Img: true,
	atom.Input: true, atom.Ins: true, atom.Kbd: true, atom.Label: true,
	atom.Map: true, atom.Mark: true, atom.Meter: true, atom.Noscript: true,
	atom.Object: true, atom.Output: true, atom.Picture: true,
	atom.Progress: true, atom.Q: true, atom.Ruby: true, atom.S: true,
	atom.Samp: true, atom.Select: true, atom.Small: true, atom.Span: true,
	atom.Strong: true, atom.Sub: true, atom.Sup: true, atom.Template: true,
	atom.Textarea: true, atom.Time: true, atom.U: true, atom.Var: true,
	atom.Video: true, atom.Wbr: true,
}

// voidAtoms is the HTML5 void-element set.
var voidAtoms = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Param: true, atom.Source: true,
	atom.Track: true, atom.Wbr: true,
}

// parentRules restricts which children the structured elements accept;
// everything else is governed by the phrasing rule or is unrestricted.
var parentRules = map[string]map[string]bool{
	"table": {
		"caption": true, "colgroup": true, "thead": true, "tbody": true,
		"tfoot": true, "tr": true, "td": true, "th": true,
	},
	"tr": {"td": true, "th": true},
	"dl": {"dt": true, "dd": true, "div": true},
	"ol": {"li": true},
	"ul": {"li": true},
}

func isPhrasing(tag string) bool {
	return phrasingAtoms[atom.Lookup([]byte(tag))]
}

func isVoid(tag string) bool {
	return voidAtoms[atom.Lookup([]byte(tag))]
}

func isCodeTag(tag string) bool {
	switch tag {
	case "code", "kbd", "pre", "samp", "var":
		return true
	}
	return false
}
