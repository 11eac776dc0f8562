// Package server exposes schedules, accounts, posts and media over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/clipcast/internal/accounts"
	"github.com/watzon/clipcast/internal/config"
	"github.com/watzon/clipcast/internal/database"
	"github.com/watzon/clipcast/internal/media"
	"github.com/watzon/clipcast/internal/posts"
	"github.com/watzon/clipcast/internal/scheduler"
	"github.com/watzon/clipcast/internal/schedules"
	"github.com/watzon/clipcast/internal/sessions"
)

// Deps are the components the HTTP API reads and mutates.
type Deps struct {
	Schedules *schedules.Store
	Accounts  *accounts.Store
	Posts     *posts.Store
	Media     *media.Library
	Sessions  *sessions.Store
	Scheduler *scheduler.Scheduler
	State     *scheduler.StateStore
	Version   string
}

type Server struct {
	cfg        *config.Config
	db         *database.DB
	deps       Deps
	httpServer *http.Server
	router     *Router
}

func New(cfg *config.Config, db *database.DB, deps Deps) *Server {
	srv := &Server{
		cfg:  cfg,
		db:   db,
		deps: deps,
	}

	srv.router = NewRouter(srv)

	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP API listening")

	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping HTTP API")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wrapped router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// DB is the handle health checks ping.
func (s *Server) DB() *database.DB {
	return s.db
}
