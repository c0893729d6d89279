package bridge

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed assets/engine.html assets/logo.png
var assets embed.FS

var pageTemplate = template.Must(template.ParseFS(assets, "assets/engine.html"))

// pageConfig is injected into the bootstrap page as window.HOLDSCRIBE_CONFIG.
type pageConfig struct {
	ChannelURL string `json:"channelUrl"`
	Token      string `json:"token"`
}

func (b *Bridge) bootstrapRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(b.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.With(middleware.NoCache).Get("/", b.handlePage)
	r.With(middleware.NoCache).Get("/index.html", b.handlePage)
	r.Get("/logo.png", b.handleLogo)
	return r
}

func (b *Bridge) handlePage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	data := struct{ Config pageConfig }{
		Config: pageConfig{ChannelURL: b.ChannelURL(), Token: b.token},
	}
	if err := pageTemplate.Execute(&buf, data); err != nil {
		b.logger.Error("render bootstrap page", "error", err)
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (b *Bridge) handleLogo(w http.ResponseWriter, r *http.Request) {
	data, err := assets.ReadFile("assets/logo.png")
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (b *Bridge) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		b.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
