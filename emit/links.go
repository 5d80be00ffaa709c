package emit

import (
	"strconv"
	"strings"

	"github.com/mwcore/wikirender/funcs"
	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/token"
)

// renderWikilink emits an internal [[...]] link: category links are
// absorbed into the categories set, file links render a media link,
// self-links render without an href, and missing targets become
// redlinks.
func (e *Emitter) renderWikilink(t *token.Token) error {
	target := strings.TrimSpace(plainText(e.frame.Source, t.Target))
	target = strings.ReplaceAll(target, "_", " ")

	escaped := strings.HasPrefix(target, ":")
	tt := title.New(e.cfg.Namespaces, strings.TrimPrefix(target, ":"), e.cfg.Namespaces.Main())

	switch {
	case tt.Namespace().ID == title.NSCategory && !escaped:
		e.absorbCategory(tt)
		if t.HasTrail {
			e.textRun(t.Trail.Slice(e.frame.Source))
		}
		return nil

	case tt.Namespace().ID == title.NSFile && !escaped:
		return e.renderFileLink(tt, t)
	}
	return e.renderInternalLink(target, tt, t)
}

// absorbCategory records the category and strips preceding whitespace
// up to and including the last newline, so the absorbed link doesn't
// leave a blank paragraph behind.
func (e *Emitter) absorbCategory(tt title.Title) {
	e.state.AddCategory(tt.Text())

	out := e.html.b
	i := len(out)
	for i > 0 && (out[i-1] == ' ' || out[i-1] == '\t' || out[i-1] == '\r' || out[i-1] == '\n') {
		i--
	}
	// Advance forward to the nearest newline: only the line break itself
	// and what follows is removed, earlier intra-line spacing stays.
	for j := i; j < len(out); j++ {
		if out[j] == '\n' {
			e.html.truncate(j)
			return
		}
	}
}

func (e *Emitter) renderFileLink(tt title.Title, t *token.Token) error {
	e.expectGraf()
	href := e.cfg.ArticlePath + "/" + tt.PartialURL()
	e.startTag("a", nil, ` href="`+href+`" class="mw-file-description"`)
	if len(t.Args) > 0 {
		// The last argument is the caption; earlier ones are rendering
		// options the frontend interprets.
		if err := e.adoptTokens(t.Args[len(t.Args)-1].Content); err != nil {
			return err
		}
	} else {
		e.textRun(tt.Text())
	}
	e.endTag("a")
	return nil
}

func (e *Emitter) renderInternalLink(target string, tt title.Title, t *token.Token) error {
	e.expectGraf()

	selflink := tt.Fragment() == "" && tt.Interwiki() == "" &&
		e.frame.Root().Title.Equal(tt)

	switch {
	case selflink:
		e.startTag("a", nil, ` class="mw-selflink selflink"`)

	case tt.Interwiki() != "":
		if entry, ok := e.cfg.InterwikiURL(tt.Interwiki()); ok {
			href := strings.ReplaceAll(entry.URL, "$1", tt.PartialURL())
			e.startTag("a", nil, ` href="`+href+`" class="extiw"`)
		} else {
			e.startTag("a", nil, ` href="`+e.cfg.ArticlePath+"/"+tt.PartialURL()+`"`)
		}

	case tt.Text() == "" && tt.Fragment() != "":
		// Fragment-only link within the current page.
		e.startTag("a", nil, ` href="#`+funcs.AnchorEncode(tt.Fragment())+`"`)

	default:
		href := e.cfg.ArticlePath + "/" + tt.PartialURL()
		query := ""
		class := ""
		if !e.store.Contains(e.ctx, tt.Key()) {
			query = "?mode=edit&redlink=1"
			class = ` class="new"`
		}
		if tt.Fragment() != "" {
			query += "#" + funcs.AnchorEncode(tt.Fragment())
		}
		e.startTag("a", nil, ` href="`+href+query+`"`+class)
	}

	if len(t.Args) > 0 {
		if err := e.adoptTokens(t.Args[len(t.Args)-1].Content); err != nil {
			return err
		}
	} else {
		e.textRun(strings.TrimPrefix(target, ":"))
	}
	if t.HasTrail {
		e.textRun(t.Trail.Slice(e.frame.Source))
	}
	e.endTag("a")
	return nil
}

// renderExternalLink emits [url] / [url text] links; a link with no
// content text receives a per-render ordinal label.
func (e *Emitter) renderExternalLink(t *token.Token) error {
	e.expectGraf()

	href := strings.TrimSpace(plainText(e.frame.Source, t.Target))
	class := "external"
	if t.Kind == token.Autolink {
		class = "external free"
	}
	e.startTag("a", nil, ` href="`+strings.ReplaceAll(href, `"`, "%22")+`" class="`+class+`" rel="nofollow"`)

	content := t.Args
	switch {
	case len(content) > 0:
		if err := e.adoptTokens(content[0].Content); err != nil {
			return err
		}
	case t.Kind == token.Autolink:
		e.textRun(href)
	default:
		e.state.ExternalLinkOrdinal++
		e.textRun("[" + strconv.Itoa(e.state.ExternalLinkOrdinal) + "]")
	}
	e.endTag("a")
	return nil
}
