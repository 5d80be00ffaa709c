// Command render-server is a minimal HTTP front door over the render
// pipeline: it serves rendered articles from a seed directory of .wiki
// files. The dump-backed article store and the full frontend live
// elsewhere; this binary exists to exercise render() end to end.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/mwcore/wikirender/prefetch"
	"github.com/mwcore/wikirender/render"
	"github.com/mwcore/wikirender/store"
	"github.com/mwcore/wikirender/wikiconf"
)

func main() {
	var (
		addr      = flag.String("addr", ":8080", "listen address")
		seedDir   = flag.String("seed", "./articles", "directory of .wiki seed articles")
		logFormat = flag.String("log-format", "pretty", "log format: pretty, json, text")
		logLevel  = flag.String("log-level", "info", "log level: debug, info, warn, error")
		workers   = flag.Int("prefetch-workers", 0, "prefetch pool size (0 = auto)")
	)
	flag.Parse()

	InitLogger(ParseLogFormat(*logFormat), ParseLogLevel(*logLevel))

	cfg, err := wikiconf.Load()
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	mem := store.NewMemStore()
	if err := seedArticles(mem, *seedDir); err != nil {
		slog.Warn("seeding articles", "dir", *seedDir, "error", err)
	}

	cached := store.NewCachedStore(mem, 1024)
	pool := prefetch.New(memSource{mem}, cached, *workers)
	defer pool.Close()
	st := prefetch.NewStore(cached, pool)

	renderer := render.New(cfg, st)

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/article/{title}", articleHandler(renderer, st)).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	srv := &http.Server{
		Addr:    *addr,
		Handler: handlers.CompressHandler(handlers.LoggingHandler(os.Stderr, router)),
	}

	go func() {
		slog.Info("listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func articleHandler(renderer *render.Renderer, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["title"]
		mode := render.LoadBase
		if req.URL.Query().Get("mode") == "module" {
			mode = render.LoadModule
		}

		art, err := st.Get(req.Context(), strings.ReplaceAll(name, "_", " "))
		if err != nil {
			http.NotFound(w, req)
			return
		}

		result, err := renderer.Render(req.Context(), art, mode)
		if err != nil {
			slog.Error("render failed", "title", name, "error", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if len(result.Styles) > 0 {
			w.Write([]byte("<style>" + result.Styles + "</style>\n"))
		}
		w.Write([]byte(result.HTML))
	}
}

// seedArticles loads every .wiki file under dir as an article whose
// title is the filename with underscores folded to spaces.
func seedArticles(mem *store.MemStore, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wiki") {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".wiki")
		name = strings.ReplaceAll(name, "_", " ")
		model := store.ModelWikitext
		if strings.HasPrefix(name, "Module:") {
			model = store.ModelModule
		}
		mem.Put(&store.Article{Title: name, Model: model, Body: string(body)})
	}
	return nil
}

// memSource adapts the in-memory store to the prefetch pool's scan and
// decode surface.
type memSource struct {
	mem *store.MemStore
}

func (s memSource) ScanExists(ctx context.Context, titles []string) (map[string]bool, error) {
	out := make(map[string]bool, len(titles))
	for _, t := range titles {
		out[t] = s.mem.Contains(ctx, t)
	}
	return out, nil
}

func (s memSource) Decode(ctx context.Context, title string) (*store.Article, error) {
	return s.mem.Get(ctx, title)
}
