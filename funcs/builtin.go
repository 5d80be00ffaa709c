package funcs

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/strip"
	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/token"
)

var errPolicy = bluemonday.StrictPolicy()

// errorSpan renders an inline error for a degraded handler. The message
// may contain script-provided text, so it is sanitised before insertion.
func errorSpan(msg string) string {
	return `<span class="error">` + errPolicy.Sanitize(msg) + `</span>`
}

// RegisterBuiltins installs the standard parser functions, variables,
// and extension tags into reg.
func RegisterBuiltins(reg *Registry) {
	registerControlFlow(reg)
	registerStringFuncs(reg)
	registerTitleFuncs(reg)
	registerVariables(reg)
	registerTags(reg)
}

func registerControlFlow(reg *Registry) {
	reg.RegisterFunction("#if", func(a IndexedArgs) (string, error) {
		if a.TrimmedArg(1) != "" {
			return a.TrimmedArg(2), nil
		}
		return a.TrimmedArg(3), nil
	})

	reg.RegisterFunction("#ifeq", func(a IndexedArgs) (string, error) {
		if a.TrimmedArg(1) == a.TrimmedArg(2) {
			return a.TrimmedArg(3), nil
		}
		return a.TrimmedArg(4), nil
	})

	reg.RegisterFunction("#iferror", func(a IndexedArgs) (string, error) {
		test := a.Arg(1)
		if strings.Contains(test, `class="error`) {
			return a.TrimmedArg(2), nil
		}
		if a.RawArgCount() >= 3 {
			return a.TrimmedArg(3), nil
		}
		return strings.TrimSpace(test), nil
	})

	reg.RegisterFunction("#ifexist", func(a IndexedArgs) (string, error) {
		name := a.TrimmedArg(1)
		if name != "" && a.Store != nil {
			t := title.New(a.Config.Namespaces, name, a.Config.Namespaces.Main())
			if a.Store.Contains(a.Context, t.Key()) {
				return a.TrimmedArg(2), nil
			}
		}
		return a.TrimmedArg(3), nil
	})

	reg.RegisterFunction("#switch", fnSwitch)

	reg.RegisterFunction("#expr", func(a IndexedArgs) (string, error) {
		// The numeric expression engine is an external collaborator;
		// without it the failure surfaces as inline text, which #iferror
		// callers catch.
		return errorSpan("expression evaluation is not available"), nil
	})

	reg.RegisterFunction("#ifexpr", func(a IndexedArgs) (string, error) {
		return errorSpan("expression evaluation is not available"), nil
	})

	reg.RegisterFunction("#invoke", fnInvoke)
}

// fnSwitch implements {{#switch:subject|case=value|...|default}}.
// Unnamed cases fall through to the next named value; a trailing
// unnamed argument is the default when nothing matched.
func fnSwitch(a IndexedArgs) (string, error) {
	subject := a.TrimmedArg(1)
	matched := false
	defaultVal := ""
	hasDefault := false

	n := a.RawArgCount()
	for i := 2; i <= n; i++ {
		if name, value, ok := a.NamedArg(i); ok {
			if matched || name == subject {
				return value, nil
			}
			if name == "#default" {
				defaultVal, hasDefault = value, true
			}
			continue
		}
		candidate := a.TrimmedArg(i)
		if i == n && !matched {
			// Trailing unnamed argument: the implicit default.
			if candidate == subject {
				return candidate, nil
			}
			if !hasDefault {
				defaultVal, hasDefault = candidate, true
			}
			continue
		}
		if candidate == subject {
			matched = true
		}
	}
	if matched {
		return "", nil
	}
	if hasDefault {
		return defaultVal, nil
	}
	return "", nil
}

func fnInvoke(a IndexedArgs) (string, error) {
	if a.Modules == nil {
		return errorSpan("script execution is not available"), nil
	}
	module := a.TrimmedArg(1)
	if module == "" {
		return "", nil
	}
	fn := a.TrimmedArg(2)
	if fn == "" {
		return errorSpan("#invoke requires a function name"), nil
	}
	var rest []token.Argument
	if a.RawArgCount() > 2 {
		rest = a.Raw[2:]
	}
	out, err := a.Modules.Invoke(a.State, a.Frame, module, fn, rest)
	if err != nil {
		// A failed module degrades to a visible error; the render
		// continues.
		return errorSpan(rstate.RootCause(err).Error()), nil
	}
	return out, nil
}

func registerStringFuncs(reg *Registry) {
	reg.RegisterFunction("lc", func(a IndexedArgs) (string, error) {
		return strings.ToLower(a.TrimmedArg(1)), nil
	})
	reg.RegisterFunction("uc", func(a IndexedArgs) (string, error) {
		return strings.ToUpper(a.TrimmedArg(1)), nil
	})
	reg.RegisterFunction("lcfirst", func(a IndexedArgs) (string, error) {
		return changeFirst(a.TrimmedArg(1), strings.ToLower), nil
	})
	reg.RegisterFunction("ucfirst", func(a IndexedArgs) (string, error) {
		return changeFirst(a.TrimmedArg(1), strings.ToUpper), nil
	})
	reg.RegisterFunction("padleft", func(a IndexedArgs) (string, error) {
		return pad(a, true), nil
	})
	reg.RegisterFunction("padright", func(a IndexedArgs) (string, error) {
		return pad(a, false), nil
	})
	reg.RegisterFunction("urlencode", func(a IndexedArgs) (string, error) {
		return urlEncodeQuery(a.TrimmedArg(1)), nil
	})
	reg.RegisterFunction("anchorencode", func(a IndexedArgs) (string, error) {
		return AnchorEncode(a.TrimmedArg(1)), nil
	})

	reg.RegisterFunction("#tag", makeTagFn(reg))
}

func changeFirst(s string, f func(string) string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return f(string(r[0])) + string(r[1:])
}

func pad(a IndexedArgs, left bool) string {
	s := a.TrimmedArg(1)
	width := 0
	for _, c := range a.TrimmedArg(2) {
		if c < '0' || c > '9' {
			break
		}
		width = width*10 + int(c-'0')
	}
	fill := a.TrimmedArg(3)
	if fill == "" {
		fill = "0"
	}
	for len([]rune(s)) < width {
		need := width - len([]rune(s))
		chunk := []rune(fill)
		if len(chunk) > need {
			chunk = chunk[:need]
		}
		if left {
			s = string(chunk) + s
		} else {
			s += string(chunk)
		}
	}
	return s
}

// makeTagFn builds the {{#tag:name|body|k=v}} handler over the same
// dispatch table as source-level extension tags. Arguments here are raw
// wikitext, not attribute tokens, and the call may carry no source span
// when it originates from a script.
func makeTagFn(reg *Registry) ParserFunctionHandler {
	return func(a IndexedArgs) (string, error) {
		name := a.TrimmedArg(1)
		if name == "" {
			return "", nil
		}

		kv := make(map[string]string)
		for i := 3; i <= a.RawArgCount(); i++ {
			if k, v, ok := a.NamedArg(i); ok {
				kv[strings.ToLower(k)] = v
			}
		}

		ea := ExtensionArgs{
			Name:    name,
			KV:      kv,
			Span:    a.Span,
			HasSpan: a.HasSpan,
			Frame:   a.Frame,
			State:   a.State,
			Config:  a.Config,
			Eval:    a.Eval,
			Modules: a.Modules,
			Store:   a.Store,
			Context: a.Context,
		}
		if a.RawArgCount() >= 2 {
			ea.Body = a.Arg(2)
			ea.HasBody = true
		}

		if !ea.HasSpan {
			// No source location: reserialise literally so the result is
			// cacheable across calls and can be parsed in place later.
			return serialiseTag(name, kv, ea.Body, ea.HasBody), nil
		}

		mode, html, found, err := reg.CallTag(ea)
		if err != nil {
			return errorSpan(rstate.RootCause(err).Error()), nil
		}
		if !found {
			return serialiseTag(name, kv, ea.Body, ea.HasBody), nil
		}
		switch mode {
		case ModeBlock:
			return a.State.Strip.Insert(strip.Block, html), nil
		case ModeInline:
			return a.State.Strip.Insert(strip.Inline, html), nil
		case ModeNowiki:
			return a.State.Strip.Insert(strip.NoWiki, html), nil
		case ModeEmpty:
			return "", nil
		default:
			return html, nil
		}
	}
}

func serialiseTag(name string, kv map[string]string, body string, hasBody bool) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(name)
	for k, v := range kv {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(strings.ReplaceAll(v, `"`, "&quot;"))
		b.WriteByte('"')
	}
	if !hasBody {
		b.WriteString("/>")
		return b.String()
	}
	b.WriteByte('>')
	b.WriteString(body)
	b.WriteString("</")
	b.WriteString(name)
	b.WriteByte('>')
	return b.String()
}

func registerTitleFuncs(reg *Registry) {
	reg.RegisterFunction("ns", func(a IndexedArgs) (string, error) {
		arg := a.TrimmedArg(1)
		if ns := a.Config.Namespaces.ByName(arg); ns != nil {
			return ns.Name, nil
		}
		id := 0
		neg := false
		for i, c := range arg {
			if i == 0 && c == '-' {
				neg = true
				continue
			}
			if c < '0' || c > '9' {
				return "", nil
			}
			id = id*10 + int(c-'0')
		}
		if neg {
			id = -id
		}
		if ns := a.Config.Namespaces.ByID(id); ns != nil {
			return ns.Name, nil
		}
		return "", nil
	})

	reg.RegisterFunction("fullurl", func(a IndexedArgs) (string, error) {
		t := title.New(a.Config.Namespaces, a.TrimmedArg(1), a.Config.Namespaces.Main())
		u := a.Config.ArticleURL(t.PartialURL())
		// Always protocol-relative: the scheme of the base URI is dropped.
		if idx := strings.Index(u, "//"); idx > 0 {
			u = u[idx:]
		}
		if q := a.TrimmedArg(2); q != "" {
			u += "?" + q
		}
		return u, nil
	})

	reg.RegisterFunction("canonicalurl", func(a IndexedArgs) (string, error) {
		t := title.New(a.Config.Namespaces, a.TrimmedArg(1), a.Config.Namespaces.Main())
		u := a.Config.ArticleURL(t.PartialURL())
		if q := a.TrimmedArg(2); q != "" {
			u += "?" + q
		}
		return u, nil
	})

	reg.RegisterFunction("localurl", func(a IndexedArgs) (string, error) {
		t := title.New(a.Config.Namespaces, a.TrimmedArg(1), a.Config.Namespaces.Main())
		u := a.Config.ArticlePath + "/" + t.PartialURL()
		if q := a.TrimmedArg(2); q != "" {
			u += "?" + q
		}
		return u, nil
	})
}

func registerVariables(reg *Registry) {
	rootTitle := func(a IndexedArgs) title.Title {
		return a.Frame.Root().Title
	}
	currentTitle := func(a IndexedArgs) title.Title {
		return a.Frame.Title
	}

	reg.RegisterVariable("!", func(a IndexedArgs) (string, error) {
		return "|", nil
	})
	reg.RegisterVariable("=", func(a IndexedArgs) (string, error) {
		return "=", nil
	})
	reg.RegisterVariable("pagename", func(a IndexedArgs) (string, error) {
		return rootTitle(a).Text(), nil
	})
	reg.RegisterVariable("pagenamee", func(a IndexedArgs) (string, error) {
		return rootTitle(a).PartialURL(), nil
	})
	reg.RegisterVariable("fullpagename", func(a IndexedArgs) (string, error) {
		return rootTitle(a).FullText(), nil
	})
	reg.RegisterVariable("fullpagenamee", func(a IndexedArgs) (string, error) {
		return urlEncodeQuery(rootTitle(a).FullText()), nil
	})
	reg.RegisterVariable("namespace", func(a IndexedArgs) (string, error) {
		return rootTitle(a).Namespace().Name, nil
	})
	reg.RegisterVariable("namespacee", func(a IndexedArgs) (string, error) {
		return urlEncodeQuery(rootTitle(a).Namespace().Name), nil
	})
	reg.RegisterVariable("talkpagename", func(a IndexedArgs) (string, error) {
		t := rootTitle(a)
		talk := a.Config.Namespaces.ByID(t.Namespace().TalkID())
		if talk == nil {
			return "", nil
		}
		return talk.Name + ":" + t.Text(), nil
	})
	reg.RegisterVariable("subjectpagename", func(a IndexedArgs) (string, error) {
		t := rootTitle(a)
		subj := a.Config.Namespaces.ByID(t.Namespace().SubjectID())
		if subj == nil || subj.Name == "" {
			return t.Text(), nil
		}
		return subj.Name + ":" + t.Text(), nil
	})
	reg.RegisterVariable("basepagename", func(a IndexedArgs) (string, error) {
		return rootTitle(a).BaseText(), nil
	})
	reg.RegisterVariable("rootpagename", func(a IndexedArgs) (string, error) {
		return rootTitle(a).RootText(), nil
	})
	reg.RegisterVariable("subpagename", func(a IndexedArgs) (string, error) {
		return rootTitle(a).SubpageText(), nil
	})
	reg.RegisterVariable("currentpagename", func(a IndexedArgs) (string, error) {
		return currentTitle(a).Text(), nil
	})
	reg.RegisterVariable("sitename", func(a IndexedArgs) (string, error) {
		return a.Config.SiteName, nil
	})
	reg.RegisterVariable("server", func(a IndexedArgs) (string, error) {
		return a.Config.BaseURI, nil
	})
	reg.RegisterVariable("scriptpath", func(a IndexedArgs) (string, error) {
		return a.Config.ArticlePath, nil
	})
}

// urlEncodeQuery percent-encodes s the way a query-string value is
// encoded: spaces become '+', everything outside the unreserved set is
// %XX.
func urlEncodeQuery(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_':
			b.WriteByte(c)
		default:
			b.WriteString(percentHex(c, '%'))
		}
	}
	return b.String()
}

// AnchorEncode applies the fragment encoding used for heading anchors
// and citation ids: spaces fold to underscores and bytes outside the
// safe set are encoded with a '.' escape instead of '%'.
func AnchorEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('_')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == ':', c == '.':
			b.WriteByte(c)
		default:
			b.WriteString(percentHex(c, '.'))
		}
	}
	return b.String()
}

func percentHex(c byte, esc byte) string {
	const hex = "0123456789ABCDEF"
	return string([]byte{esc, hex[c>>4], hex[c&0xf]})
}
