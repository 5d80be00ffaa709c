package render

import (
	"strings"

	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/token"
	"github.com/mwcore/wikirender/wikiconf"
)

// hintPrefetch walks a freshly parsed tree and hints the store about
// titles the expander is about to need: template targets at high
// priority (their content will be transcluded) and plain link targets
// at low priority (only their existence bit matters, for redlinks).
// Only statically resolvable targets are hinted; anything needing
// evaluation is left for the expander itself.
func hintPrefetch(st store.Store, cfg *wikiconf.Config, source string, toks []token.Token) {
	for i := range toks {
		t := &toks[i]
		switch t.Kind {
		case token.Template:
			if target, ok := staticText(source, t.Target); ok {
				name := strings.TrimSpace(target)
				if name == "" || strings.ContainsAny(name, "#:") {
					break
				}
				tt := title.New(cfg.Namespaces, name, cfg.Namespaces.ByID(title.NSTemplate))
				st.Prefetch(tt.Key(), 1)
			}
			for _, a := range t.Args {
				hintPrefetch(st, cfg, source, a.Content)
			}

		case token.Link:
			if target, ok := staticText(source, t.Target); ok && !strings.Contains(target, ":") {
				tt := title.New(cfg.Namespaces, strings.TrimSpace(target), cfg.Namespaces.Main())
				if tt.Text() != "" {
					st.Prefetch(tt.Key(), 0)
				}
			}
			for _, a := range t.Args {
				hintPrefetch(st, cfg, source, a.Content)
			}

		case token.Heading, token.ListItem, token.TableData, token.TableHeading, token.TableCaption:
			hintPrefetch(st, cfg, source, t.Content)

		case token.Parameter:
			hintPrefetch(st, cfg, source, t.Target)
			hintPrefetch(st, cfg, source, t.Default)
		}
	}
}

// staticText returns the literal text of a token run when it contains
// nothing that needs evaluation.
func staticText(source string, toks []token.Token) (string, bool) {
	var b strings.Builder
	for _, t := range toks {
		switch t.Kind {
		case token.Text:
			b.WriteString(t.Span.Slice(source))
		case token.Generated:
			b.WriteString(t.Text)
		default:
			return "", false
		}
	}
	return b.String(), b.Len() > 0
}
