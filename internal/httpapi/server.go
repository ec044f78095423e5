// Package httpapi exposes the service over HTTP: the published state, the
// current artifact, an authenticated manual-generation trigger, and the
// health and metrics endpoints.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"moyuren/internal/errcode"
	"moyuren/internal/state"
)

// Generator is the orchestrator surface the API needs.
type Generator interface {
	Generate(ctx context.Context, templateName string) (string, error)
}

// Server wires the routes and owns the http.Server.
type Server struct {
	store     *state.Store
	generator Generator
	staticDir string
	apiKey    string

	httpServer *http.Server
}

// New builds the server. An empty apiKey disables authentication on the
// generate endpoint.
func New(addr string, store *state.Store, generator Generator, staticDir, apiKey string) *Server {
	s := &Server{
		store:     store,
		generator: generator,
		staticDir: staticDir,
		apiKey:    apiKey,
	}

	r := mux.NewRouter()
	r.Use(s.requestID, s.logRequests, s.recoverPanics)

	r.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/api/image/today", s.handleImageToday).Methods(http.MethodGet)
	r.HandleFunc("/api/generate", s.handleGenerate).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, errcode.New(errcode.APINotFound, "no such route"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, errcode.New(errcode.APIMethodNotAllowed, "method not allowed"))
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
