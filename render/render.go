// Package render is the top of the wikitext evaluation pipeline: parse,
// expand, re-parse, emit. One Renderer serves many articles; everything
// per-article lives in an rstate.State created at render entry and
// dropped when the result is returned.
package render

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/mwcore/wikirender/emit"
	"github.com/mwcore/wikirender/expand"
	"github.com/mwcore/wikirender/funcs"
	"github.com/mwcore/wikirender/modhost"
	"github.com/mwcore/wikirender/rstate"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/wikiconf"
	"github.com/mwcore/wikirender/wikitext"
)

// LoadMode gates whether modules and parameter substitution run.
type LoadMode = expand.LoadMode

const (
	LoadBase   = expand.LoadBase
	LoadModule = expand.LoadModule
)

// Result is one article's rendered output plus its side outputs.
type Result struct {
	HTML       string
	Categories []string
	Indicators map[string]string
	Outline    []rstate.OutlineEntry
	Styles     string
	Timings    map[string]*rstate.Timing
	RenderID   string
}

// Renderer holds the shared, read-only pieces of the pipeline.
type Renderer struct {
	Cfg       *wikiconf.Config
	Store     store.Store
	Registry  *funcs.Registry
	Templates *store.TemplateCache
	Host      *modhost.Host
	Log       *slog.Logger
}

// New wires a renderer over cfg and st with the builtin parser
// functions, extension tags, and module host installed.
func New(cfg *wikiconf.Config, st store.Store) *Renderer {
	reg := funcs.NewRegistry()
	funcs.RegisterBuiltins(reg)
	return &Renderer{
		Cfg:       cfg,
		Store:     st,
		Registry:  reg,
		Templates: store.NewTemplateCache(256),
		Host:      modhost.NewHost(cfg, st),
		Log:       slog.Default(),
	}
}

// Render evaluates one article to HTML. Base mode short-circuits
// templates, parameters, and modules into a "Run scripts" placeholder.
func (r *Renderer) Render(ctx context.Context, article *store.Article, mode LoadMode) (*Result, error) {
	start := time.Now()
	renderID := ""
	if id, err := uuid.NewV4(); err == nil {
		renderID = id.String()
	}
	log := r.Log.With("render_id", renderID, "title", article.Title)

	state := rstate.NewState()
	state.RenderStart = start

	t := title.New(r.Cfg.Namespaces, article.Title, r.Cfg.Namespaces.Main())
	root := rstate.NewRootFrame(t)
	root.Source = article.Body

	doc, err := wikitext.Parse(r.Cfg.Grammar, article.Body, false)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", article.Title)
	}

	ev := expand.NewEvaluator(ctx, r.Cfg, r.Store, r.Registry, state, r.Templates, mode)
	ev.Log = log
	if mode == LoadModule && r.Host != nil {
		r.Host.Eval = ev
		ev.Modules = r.Host
	}

	// Hint the pool before the expander starts pulling templates, so
	// index scans and decodes overlap with evaluation.
	hintPrefetch(r.Store, r.Cfg, article.Body, doc.Tokens)

	expanded, err := ev.ExpandDocument(doc, root)
	if err != nil {
		return nil, err
	}

	reparsed, err := wikitext.Parse(r.Cfg.Grammar, expanded, false)
	if err != nil {
		return nil, errors.Wrap(err, "reparsing expanded output")
	}

	shadow := root.WithSource(expanded)
	em := emit.New(ctx, r.Cfg, r.Store, state, r.Registry, ev, shadow)
	html, err := em.Render(reparsed.Tokens)
	if err != nil {
		return nil, err
	}

	log.Debug("render complete",
		"mode", int(mode),
		"duration", time.Since(start),
		"templates", len(state.Timings),
		"strip_markers", state.Strip.Len(),
	)

	return &Result{
		HTML:       html,
		Categories: state.CategoryOrder,
		Indicators: state.Indicators,
		Outline:    buildOutline(html),
		Styles:     strings.Join(state.StyleText, ""),
		Timings:    state.Timings,
		RenderID:   renderID,
	}, nil
}
