// Package server exposes a Signer over HTTP.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"xtid/transaction"
)

// Signer is the part of signer.Signer the server needs.
type Signer interface {
	Session(ctx context.Context) (*transaction.Session, error)
	Refresh(ctx context.Context) (*transaction.Session, error)
}

// Config describes server wiring and runtime behaviour.
type Config struct {
	Signer Signer
	Logger *log.Logger
	Clock  func() time.Time
}

// Server serves transaction ids.
type Server struct {
	cfg     Config
	router  chi.Router
	handler http.Handler
	logger  *log.Logger
	clock   func() time.Time
}

// New wires a server around cfg.Signer.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		logger: cfg.Logger,
		clock:  cfg.Clock,
	}
	s.registerRoutes()
	s.handler = withRequestID(withLogging(s.logger, s.router))
	return s
}

// Handler exposes the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler { return s }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Get("/transaction-id", s.handleTransactionID)
	s.router.Post("/refresh", s.handleRefresh)
	s.router.Get("/ping", s.handlePing)
}
