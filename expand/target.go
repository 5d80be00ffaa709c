package expand

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mwcore/wikirender/funcs"
	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/strip"
	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/token"
	"github.com/mwcore/wikirender/wikitext"
)

// maxRedirectDepth bounds a template redirect chain; exceeding it (or a
// cycle, which necessarily exceeds it) is fatal for the render.
const maxRedirectDepth = 10

// targetKind classifies a template target after evaluation.
type targetKind int

const (
	targetParserFn targetKind = iota
	targetTemplate
	targetText
)

// splitResult is the outcome of evaluating a template target up to its
// first top-level colon.
type splitResult struct {
	kind   targetKind
	callee string
	// firstArg is the implicit first argument produced by a colon call,
	// nil when the colon carried no argument.
	firstArg []token.Token
	// calleeTitle is set for targetTemplate.
	calleeTitle title.Title
}

// splitTarget evaluates a template target left to right, splitting at
// the first top-level colon and classifying the call. Target tokens are
// evaluated one at a time because the callee may itself be assembled
// from nested expansions ("{{ {{#if:1|#if:}} 1|y|n }}" is legal).
func (w *walker) splitTarget(target []token.Token, args []token.Argument) (splitResult, error) {
	var callee strings.Builder
	hasColon := false
	var firstArg []token.Token
	i := 0

	for ; i < len(target); i++ {
		part := &target[i]
		var text string
		switch part.Kind {
		case token.Text:
			text = part.Span.Slice(w.frame.Source)
		case token.Generated:
			text = part.Text
		default:
			var err error
			text, err = w.ev.Expand(target[i:i+1], w.frame)
			if err != nil {
				return splitResult{}, err
			}
		}

		lhs, rhs, found := strings.Cut(text, ":")
		if !found {
			callee.WriteString(text)
			continue
		}
		callee.WriteString(lhs)

		trimmed := strings.TrimSpace(callee.String())
		if strings.EqualFold(trimmed, "subst") {
			// Save-time substitution in a render-time engine: the
			// original source stands.
			return splitResult{kind: targetText}, nil
		}
		if strings.EqualFold(trimmed, "safesubst") {
			// Transparent: strip the prefix and keep splitting.
			callee.Reset()
			if lhs2, rhs2, found2 := strings.Cut(rhs, ":"); found2 {
				callee.WriteString(lhs2)
				rhs = rhs2
			} else {
				callee.WriteString(rhs)
				continue
			}
		}

		hasColon = true
		if rhs != "" {
			firstArg = append(firstArg, token.Token{
				Kind: token.Generated,
				Span: part.Span,
				Text: rhs,
			})
		}
		i++
		break
	}
	rest := target[i:]

	calleeText := callee.String()
	calleeLower := strings.ToLower(strings.TrimSpace(calleeText))

	if w.isFunctionCall(len(args) == 0, hasColon, calleeLower) {
		// A colon with an empty right-hand side still passes an empty
		// first argument: {{VAR}} and {{VAR:}} differ.
		var first []token.Token
		if hasColon {
			first = append(firstArg, rest...)
			if first == nil {
				first = []token.Token{}
			}
		}
		return splitResult{kind: targetParserFn, callee: calleeLower, firstArg: first}, nil
	}

	full := calleeText
	if hasColon {
		full += ":"
		for _, t := range firstArg {
			full += t.Text
		}
	}
	restText, err := w.ev.Expand(rest, w.frame)
	if err != nil {
		return splitResult{}, err
	}
	full = strings.TrimSpace(full + restText)

	if !title.IsValid(full) {
		return splitResult{kind: targetText}, nil
	}
	t := title.New(w.ev.Cfg.Namespaces, full, w.ev.Cfg.Namespaces.ByID(title.NSTemplate))
	return splitResult{kind: targetTemplate, callee: full, calleeTitle: t}, nil
}

func (w *walker) isFunctionCall(emptyArgs, hasColon bool, calleeLower string) bool {
	return (emptyArgs && !hasColon && w.ev.Registry.IsVariable(calleeLower)) ||
		strings.HasPrefix(calleeLower, "#") ||
		(hasColon && w.ev.Registry.IsFunction(calleeLower)) ||
		calleeLower == "subst" || calleeLower == "safesubst"
}

// renderTemplate expands one {{...}} token: a parser-function call, a
// transclusion, or (when the target turns out not to name anything)
// literal text.
func (w *walker) renderTemplate(t *token.Token) error {
	if w.ev.LoadMode == LoadBase {
		w.renderFallback()
		return nil
	}

	split, err := w.splitTarget(t.Target, t.Args)
	if err != nil {
		return err
	}

	lineStart := w.atLineStart()
	var partial string
	var wrapperKey string

	switch split.kind {
	case targetText:
		w.writeSrc(t.Span)
		return nil

	case targetParserFn:
		raw := t.Args
		if split.firstArg != nil {
			first := token.Argument{Content: split.firstArg, Delimiter: -1, Terminator: -1, Span: token.CoverSpan(split.firstArg)}
			raw = append([]token.Argument{first}, t.Args...)
		}
		ia := funcs.IndexedArgs{
			Callee:  split.callee,
			Raw:     raw,
			Frame:   w.frame,
			Span:    t.Span,
			HasSpan: true,
			State:   w.ev.State,
			Config:  w.ev.Cfg,
			Eval:    w.ev,
			Modules: w.ev.Modules,
			Store:   w.ev.Store,
			Context: w.ev.Context(),
		}
		out, found, err := w.ev.Registry.CallFunction(ia)
		if !found && len(t.Args) == 0 && split.firstArg == nil {
			out, found, err = w.ev.Registry.CallVariable(ia)
		}
		if err != nil {
			return err
		}
		if !found {
			w.writeSrc(t.Span)
			return nil
		}
		partial = out

	case targetTemplate:
		partial, wrapperKey, err = w.callTemplate(split.calleeTitle, t.Args)
		if err != nil {
			return err
		}
	}

	// T2529: a template whose expansion begins with a table or
	// block-start byte is treated as beginning a new line.
	needsNewline := !lineStart &&
		(strings.HasPrefix(partial, "{|") || startsWithAny(partial, ":;#*"))

	if wrapperKey != "" {
		// Markers rather than tags, so start-of-line rules still apply
		// to the wrapped body.
		w.write(w.ev.State.Strip.Insert(strip.WikiRsSourceStart, wrapperKey))
		if needsNewline {
			w.write("\n")
		}
		w.write(partial)
		w.write(w.ev.State.Strip.Insert(strip.WikiRsSourceEnd, wrapperKey))
	} else {
		if needsNewline {
			w.write("\n")
		}
		w.write(partial)
	}
	return nil
}

func startsWithAny(s, set string) bool {
	return s != "" && strings.IndexByte(set, s[0]) >= 0
}

// callTemplate transcludes callee with the given raw arguments,
// returning the expansion and, for tacky templates, the wrapper key for
// source-scope markers.
func (w *walker) callTemplate(callee title.Title, args []token.Argument) (string, string, error) {
	frame := w.frame

	if frame.Depth+1 > w.ev.Cfg.MaxTemplateDepth {
		return "", "", &rstate.StackOverflowError{
			Title:     callee.FullText(),
			Backtrace: frame.Backtrace(),
		}
	}
	if frame.HasAncestor(callee) {
		return "", "", &rstate.TemplateRecursionError{Title: callee.FullText()}
	}

	art, err := w.ev.Store.Get(w.ev.Context(), callee.Key())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.ev.Log.Warn("no template found", "title", callee.FullText())
			return "[[" + callee.Key() + "]]", "", nil
		}
		return "", "", errors.Wrapf(err, "loading template %s", callee.FullText())
	}
	art, err = resolveRedirects(w.ev, art)
	if err != nil {
		return "", "", err
	}

	resolved := title.New(w.ev.Cfg.Namespaces, art.Title, w.ev.Cfg.Namespaces.ByID(title.NSTemplate))
	resolvedKey := resolved.Key()
	wrapperKey := ""
	if w.ev.Cfg.IsTacky(resolved.Text()) || w.ev.Cfg.IsTacky(resolvedKey) {
		wrapperKey = slugify(resolvedKey)
	}

	parsed, ok := w.ev.Templates.Get(art.ID)
	if !ok {
		res, perr := wikitext.Parse(w.ev.Cfg.Grammar, art.Body, true)
		if perr != nil {
			return "", "", perr
		}
		parsed = store.ParsedTemplate{Tokens: res.Tokens, HasOnlyInclude: res.HasOnlyInclude}
		w.ev.Templates.Put(art.ID, parsed)
	}

	child := frame.Push(callee, art.Body, args)
	child.Eval = w.ev.evalFunc(frame)

	start := time.Now()
	out, err := w.ev.run(parsed.Tokens, child, Include, parsed.HasOnlyInclude)
	w.ev.State.RecordTiming(callee.Key(), time.Since(start))
	if err != nil {
		return "", "", err
	}

	if wrapperKey != "" {
		if prev, seen := w.ev.lastExpansion[resolvedKey]; seen {
			dmp := diffmatchpatch.New()
			diffs := dmp.DiffMain(prev, out, false)
			if dist := dmp.DiffLevenshtein(diffs); dist == 0 {
				w.ev.State.MarkUnchanged(resolvedKey)
			} else {
				w.ev.Log.Debug("tacky template changed between transclusions",
					"template", resolvedKey, "edit_distance", dist)
			}
		}
		w.ev.lastExpansion[resolvedKey] = out
	}
	return out, wrapperKey, nil
}

// resolveRedirects follows a redirect chain from art, bounded by
// maxRedirectDepth.
func resolveRedirects(ev *Evaluator, art *store.Article) (*store.Article, error) {
	for i := 0; art.Redirect != ""; i++ {
		if i >= maxRedirectDepth {
			return nil, &rstate.RedirectError{Title: art.Title}
		}
		t := title.New(ev.Cfg.Namespaces, art.Redirect, ev.Cfg.Namespaces.Main())
		next, err := ev.Store.Get(ev.Context(), t.Key())
		if err != nil {
			return nil, errors.Wrapf(err, "resolving redirect from %s", art.Title)
		}
		art = next
	}
	return art, nil
}

func slugify(key string) string {
	var b strings.Builder
	for _, c := range key {
		if c >= 'A' && c <= 'Z' {
			b.WriteByte(byte(c) + ('a' - 'A'))
		} else if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(byte(c))
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// renderParameter substitutes one {{{name|default}}} token.
func (w *walker) renderParameter(t *token.Token) error {
	if w.ev.LoadMode == LoadBase {
		w.renderFallback()
		return nil
	}

	key, err := w.ev.Expand(t.Target, w.frame)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)

	if w.frame.Args != nil {
		if value, ok := w.frame.Args.Get(key, w.frame.Eval); ok {
			w.write(value)
			return nil
		}
		if t.HasDefault {
			return w.adoptTokens(t.Default)
		}
	}

	// No argument and no usable default: preserve the original source so
	// a further caller can still bind the parameter. Reassembled from
	// tokens rather than the raw span so inclusion-control tags inside
	// the braces don't leak through.
	w.write("{{{")
	if err := w.emitLiteral(t.Target); err != nil {
		return err
	}
	if t.HasDefault {
		w.write("|")
		if err := w.emitLiteral(t.Default); err != nil {
			return err
		}
	}
	w.write("}}}")
	return nil
}

func (w *walker) emitLiteral(toks []token.Token) error {
	for _, t := range toks {
		if t.Kind == token.Generated {
			w.write(t.Text)
			continue
		}
		w.writeSrc(t.Span)
	}
	return nil
}

// renderFallback stands in for a template or parameter when scripts are
// disabled: a link back to the fully scripted render.
func (w *walker) renderFallback() {
	root := w.frame.Root()
	href := w.ev.Cfg.ArticleURL(root.Title.PartialURL()) + "?mode=module"
	w.write("[" + href + ` <span class="wikirender-incomplete">Run scripts</span>]`)
}
