// Package web provides the HTTP API for the permit import service.
//
// The API is JSON-only: uploads come in as multipart form posts, progress
// goes out as Server-Sent Events, and everything else is plain JSON. There
// is no HTML surface; the HR front end lives elsewhere.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/config"
	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/permit"
	mw "github.com/arhamsadaf7-commits/sinohr-sub000/internal/web/middleware"
)

// Server is the HTTP server for the permit import API.
type Server struct {
	cfg     *config.Config
	service *permit.Service
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server over the given import service.
func NewServer(cfg *config.Config, service *permit.Service) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
		MaxAge:         300,
	}))

	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/import", func(r chi.Router) {
		r.Post("/", s.handleImport)
		r.Post("/preview", s.handlePreview)

		r.Get("/history", s.handleHistory)
		r.Get("/history/{runID}", s.handleHistoryRun)

		r.Get("/{runID}/progress", s.handleProgress)
		r.Get("/{runID}/result", s.handleResult)
		r.Post("/{runID}/cancel", s.handleCancel)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // zero: SSE needs no write deadline
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
