// Package web provides the HTTP API for previewing and importing user CSVs.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/userimport/internal/config"
	"github.com/JonMunkholm/userimport/internal/core"
	mw "github.com/JonMunkholm/userimport/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the user import API.
type Server struct {
	importer *core.Importer
	store    Pinger
	limiter  *core.ImportLimiter
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server

	apiLimiter    *rateLimiter
	importLimiter *rateLimiter
}

// NewServer creates a Server. store is only used for health checks; all
// reads and writes go through importer.
func NewServer(importer *core.Importer, store Pinger, cfg *config.Config) *Server {
	s := &Server{
		importer: importer,
		store:    store,
		limiter:  core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		cfg:      cfg,
		router:   chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.apiLimiter = newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.importLimiter = newRateLimiter(cfg.Rate.ImportLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.apiLimiter != nil {
		s.router.Use(s.apiLimiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/users", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			r.Get("/", s.handleListUsers)
			r.Get("/exists", s.handleExists)
		})

		// Parsing and importing get their own budget and a stricter rate limit
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Import.Timeout))
			if s.importLimiter != nil {
				r.Use(s.importLimiter.middleware)
			}
			r.Post("/preview", s.handlePreview)
			r.Post("/import", s.handleImport)
			r.Post("/import/rows", s.handleImportRows)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for running imports to finish
// or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopRateLimiters()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	if drainErr := s.limiter.WaitForDrain(ctx); err == nil {
		err = drainErr
	}
	return err
}

// ImportStatus returns the import slot usage.
func (s *Server) ImportStatus() core.ImportLimiterStatus {
	return s.limiter.Status()
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) stopRateLimiters() {
	if s.apiLimiter != nil {
		s.apiLimiter.stop()
	}
	if s.importLimiter != nil {
		s.importLimiter.stop()
	}
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Cache-Control", "no-store")

			// JSON only; nothing here should ever load resources
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}

			next.ServeHTTP(w, r)
		})
	}
}
