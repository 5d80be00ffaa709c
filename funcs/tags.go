package funcs

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/mwcore/wikirender/strip"
	"github.com/mwcore/wikirender/title"
)

func registerTags(reg *Registry) {
	reg.RegisterTag("nowiki", tagNoWiki)
	reg.RegisterTag("pre", tagPre)
	reg.RegisterTag("ref", tagRef)
	reg.RegisterTag("references", tagReferences)
	reg.RegisterTag("section", tagSection)
	reg.RegisterTag("templatestyles", tagTemplateStyles)
	reg.RegisterTag("syntaxhighlight", tagSyntaxHighlight)
	reg.RegisterTag("source", tagSyntaxHighlight)
	reg.RegisterTag("indicator", tagIndicator)
	reg.RegisterTag("poem", tagPoem)
	reg.RegisterTag("math", tagMath)
	reg.RegisterTag("chem", tagMath)
	reg.RegisterTag("templatedata", tagTemplateData)
}

// unstrip resolves any marker sentinels inside s back to their stored
// content, recursively.
func unstrip(a ExtensionArgs, s string) string {
	return a.State.Strip.Resolve(s, func(m strip.Marker) string {
		return m.Content
	})
}

var noWikiReplacer = strings.NewReplacer(
	"-{", "-&#123;",
	"}-", "&#125;-",
	"<", "&lt;",
	">", "&gt;",
)

func tagNoWiki(a ExtensionArgs) (OutputMode, string, error) {
	body := noWikiReplacer.Replace(a.Body)
	return ModeNowiki, unstrip(a, body), nil
}

var preNoWikiRE = regexp.MustCompile(`(?is)<nowiki>(.*?)</nowiki>`)

func tagPre(a ExtensionArgs) (OutputMode, string, error) {
	var b strings.Builder
	b.WriteString("<pre")
	for _, at := range a.Attrs {
		name := at.Name.Slice(a.Source)
		if strings.EqualFold(name, "format") {
			continue
		}
		value := name
		if at.HasValue {
			value = at.Value.Slice(a.Source)
		}
		b.WriteString(" " + name + `="` + strings.ReplaceAll(value, `"`, "&quot;") + `"`)
	}

	format, _ := a.Attr("format")
	var body string
	if format == "wikitext" {
		expanded, err := a.Eval.ExpandTemplateText(a.Body, a.Frame)
		if err != nil {
			return ModeEmpty, "", err
		}
		body = expanded
	} else {
		// Literal <nowiki> wrappers inside a <pre> are stripped before
		// escaping, a long-standing compatibility behaviour.
		body = preNoWikiRE.ReplaceAllString(a.Body, "$1")
		body = strings.ReplaceAll(body, "<", "&lt;")
		body = strings.ReplaceAll(body, ">", "&gt;")
	}

	b.WriteString(">")
	b.WriteString(unstrip(a, body))
	b.WriteString("</pre>")
	return ModeBlock, b.String(), nil
}

func tagRef(a ExtensionArgs) (OutputMode, string, error) {
	content, err := a.Eval.ExpandTemplateText(strings.TrimSpace(a.Body), a.Frame)
	if err != nil {
		return ModeEmpty, "", err
	}

	group, _ := a.Attr("group")

	if follow, ok := a.Attr("follow"); ok && follow != "" {
		a.State.References.Add(group, follow, "", content)
		return ModeEmpty, "", nil
	}

	name, hasName := a.Attr("name")
	if !hasName && content == "" {
		return ModeEmpty, "", nil
	}

	ref := a.State.References.Add(group, name, content, "")
	id := strconv.Itoa(ref.ID)
	anchor := AnchorEncode("cite_ref-" + id)
	target := AnchorEncode("ref_" + id)
	html := `<span class="reference" id="` + anchor + `"><a href="#` + target + `">` + id + `</a></span>`
	return ModeInline, html, nil
}

func tagReferences(a ExtensionArgs) (OutputMode, string, error) {
	// The body is evaluated purely for its side effects: templates such
	// as reference lists pass their accumulated <ref>s this way.
	if a.HasBody {
		if _, err := a.Eval.ExpandTemplateText(a.Body, a.Frame); err != nil {
			return ModeEmpty, "", err
		}
	}

	group, _ := a.Attr("group")
	refs := a.State.References.ByGroup(group)
	if len(refs) == 0 {
		return ModeEmpty, "", nil
	}

	var b strings.Builder
	b.WriteString(`<ol class="references">`)
	for _, r := range refs {
		if r.Content == "" {
			continue
		}
		id := strconv.Itoa(r.ID)
		anchor := AnchorEncode("ref_" + id)
		b.WriteString(`<li id="` + anchor + `" class="mw-cite-backlink"><a href="#` +
			AnchorEncode("cite_ref-"+id) + `">^</a> ` + r.Content + `</li>`)
	}
	b.WriteString("</ol>")
	return ModeBlock, b.String(), nil
}

func tagSection(a ExtensionArgs) (OutputMode, string, error) {
	// A #tag invocation from a script has no bounds to record.
	if !a.HasSpan {
		return ModeEmpty, "", nil
	}
	articleKey := a.Frame.Title.Key()
	if begin, ok := a.Attr("begin"); ok && begin != "" {
		a.State.BeginSection(articleKey, begin, a.Span.Start, a.Span.End)
	}
	if end, ok := a.Attr("end"); ok && end != "" {
		a.State.EndSection(articleKey, end, a.Span.Start)
	}
	return ModeEmpty, "", nil
}

func tagTemplateStyles(a ExtensionArgs) (OutputMode, string, error) {
	src, ok := a.Attr("src")
	if !ok || src == "" {
		return ModeEmpty, "", nil
	}
	wrapper, _ := a.Attr("wrapper")

	key := src + "\x00" + wrapper
	if a.Store == nil {
		return ModeEmpty, "", nil
	}
	t := title.New(a.Config.Namespaces, src, a.Config.Namespaces.ByID(title.NSTemplate))
	art, err := a.Store.Get(a.Context, t.Key())
	if err != nil {
		return ModeEmpty, "", nil
	}
	css := art.Body
	if wrapper != "" {
		css = wrapper + " { " + css + " }"
	}
	a.State.AddStyle(key, css+"\n")
	return ModeEmpty, "", nil
}

func tagSyntaxHighlight(a ExtensionArgs) (OutputMode, string, error) {
	lang, _ := a.Attr("lang")
	_, inline := a.Attr("inline")

	body := unstrip(a, a.Body)
	body = strings.TrimLeft(body, "\n")
	body = strings.TrimRight(body, " \t\r\n")

	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := lexer.Tokenise(nil, body)
	if err != nil {
		return ModeEmpty, "", err
	}
	formatter := chromahtml.New(
		chromahtml.PreventSurroundingPre(inline),
		chromahtml.WithClasses(true),
	)
	var code strings.Builder
	if err := formatter.Format(&code, styles.Fallback, iterator); err != nil {
		return ModeEmpty, "", err
	}

	if inline {
		return ModeInline, `<code class="mw-highlight">` + code.String() + `</code>`, nil
	}
	return ModeBlock, `<div role="code" class="mw-highlight">` + code.String() + `</div>`, nil
}

func tagIndicator(a ExtensionArgs) (OutputMode, string, error) {
	name, ok := a.Attr("name")
	if !ok || name == "" {
		return ModeEmpty, "", nil
	}
	expanded, err := a.Eval.ExpandTemplateText(a.Body, a.Frame)
	if err != nil {
		return ModeEmpty, "", err
	}
	a.State.Indicators[name] = strings.TrimSpace(expanded)
	return ModeEmpty, "", nil
}

func tagPoem(a ExtensionArgs) (OutputMode, string, error) {
	source := a.Body
	if strings.HasPrefix(source, "\r\n") {
		source = source[2:]
	} else {
		source = strings.TrimPrefix(source, "\n")
	}

	class, _ := a.Attr("class")
	_, compact := a.Attr("compact")
	nl := "\n"
	if compact {
		nl = ""
	}

	var text strings.Builder
	text.WriteString(`<div class="poem ` + class + `">` + nl)
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, ":"):
			indent := len(line) - len(strings.TrimLeft(line, ":"))
			text.WriteString(`<span class="mw-poem-indented" style="margin-inline-start: ` +
				strconv.Itoa(indent) + `em">` + line[indent:] + `</span>`)
		case strings.HasPrefix(line, " "):
			spaces := len(line) - len(strings.TrimLeft(line, " "))
			text.WriteString(strings.Repeat("&nbsp;", spaces) + line[spaces:])
		default:
			text.WriteString(line)
		}
		if strings.HasSuffix(line, "----") {
			text.WriteString("\n")
		} else if i < len(lines)-1 {
			text.WriteString("<br>\n")
		}
	}
	text.WriteString(nl + "</div>")

	expanded, err := a.Eval.ExpandTemplateText(text.String(), a.Frame)
	if err != nil {
		return ModeEmpty, "", err
	}
	expanded = strings.ReplaceAll(expanded, "<hr><br>", "<hr>")
	return ModeBlock, unstrip(a, expanded), nil
}

var texEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func tagMath(a ExtensionArgs) (OutputMode, string, error) {
	display, _ := a.Attr("display")
	tex := texEscaper.Replace(a.Body)
	if display == "block" {
		return ModeBlock, `<div class="mwe-math-element" data-tex="display">` + tex + `</div>`, nil
	}
	return ModeInline, `<span class="mwe-math-element" data-tex="inline">` + tex + `</span>`, nil
}

func tagTemplateData(a ExtensionArgs) (OutputMode, string, error) {
	// Pretty-print when the body is valid JSON; fall back to the raw
	// text otherwise.
	body := a.Body
	var parsed any
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if pretty, err := json.MarshalIndent(parsed, "", "  "); err == nil {
			body = string(pretty)
		}
	}
	body = noWikiReplacer.Replace(body)
	return ModeBlock, "<pre>" + body + "</pre>", nil
}
