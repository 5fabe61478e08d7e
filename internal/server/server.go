package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/metrics"
	"github.com/coah80/pastvoices/internal/middleware"
	"github.com/coah80/pastvoices/internal/routes"
	"github.com/coah80/pastvoices/internal/services"
	"github.com/coah80/pastvoices/internal/tasks"
)

func New(
	cfg *config.Config,
	logger zerolog.Logger,
	m metrics.Metrics,
	limiter *middleware.RateLimiter,
	personas *services.PersonaService,
	chat *services.ChatService,
	mediaSvc *services.MediaService,
	queue *tasks.Queue,
) *http.Server {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger, m))
	r.Use(chimw.Recoverer)
	r.Use(securityHeaders)
	r.Use(middleware.LoadCORS(cfg.CORSFile, logger))

	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Use(compress)

		routes.CoreRoutes(r)
		routes.PersonaRoutes(r, personas)
		routes.ChatRoutes(r, chat)
		routes.UploadRoutes(r, mediaSvc)
		routes.AdminRoutes(r, mediaSvc, queue, cfg.AdminToken)
	})

	if h := m.Handler(); h != nil {
		r.Handle("/metrics", h)
	}

	uploads := http.StripPrefix(config.UploadsURLPrefix, http.FileServer(noListingFS{http.Dir(cfg.ContentRoot)}))
	r.Handle(config.UploadsURLPrefix+"/*", uploads)

	if cfg.PublicDir != "" {
		mountPublic(r, cfg.PublicDir)
	}

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

// noListingFS serves files but answers directories with 404.
type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

// mountPublic serves the built client with an index.html fallback for
// client-side routes.
func mountPublic(r chi.Router, publicDir string) {
	abs, err := filepath.Abs(publicDir)
	if err != nil {
		return
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return
	}
	fileServer := http.FileServer(http.Dir(abs))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		cleaned := filepath.Clean(filepath.Join(abs, strings.TrimPrefix(r.URL.Path, "/")))
		if !strings.HasPrefix(cleaned, abs) {
			http.NotFound(w, r)
			return
		}
		if _, err := os.Stat(cleaned); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(abs, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func PrintBanner() {
	fmt.Printf(`
  ┌──────────────────────────────────┐
  │      pastvoices %s       │
  │  chat with voices from history   │
  └──────────────────────────────────┘
`, padVersion(config.Version))
}

func padVersion(v string) string {
	for len(v) < 10 {
		v += " "
	}
	return v
}
