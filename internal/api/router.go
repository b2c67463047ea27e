// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api serves the local control API used by window content, second
// launches and tooling.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wingedpig/deskshell/internal/api/handlers"
	"github.com/wingedpig/deskshell/internal/api/middleware"
	"github.com/wingedpig/deskshell/internal/events"
	"github.com/wingedpig/deskshell/internal/metrics"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host string
	Port int // 0 picks a free port
}

// Dependencies holds all dependencies for API handlers.
type Dependencies struct {
	Workspaces handlers.WorkspaceLister
	Opener     handlers.WorkspaceOpener
	Dispatcher handlers.Dispatcher
	EventBus   events.EventBus
	Metrics    *metrics.Metrics
	Info       handlers.Info
	Logger     *zap.Logger
}

// NewRouter creates a new API router.
func NewRouter(deps Dependencies) *mux.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	r := mux.NewRouter()

	r.Use(middleware.Logging(logger, deps.Metrics))
	r.Use(middleware.Recovery(logger))

	r.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	infoHandler := handlers.NewInfoHandler(deps.Info)
	api.HandleFunc("/version", infoHandler.Get).Methods("GET")

	workspaceHandler := handlers.NewWorkspaceHandler(deps.Workspaces, deps.Opener)
	api.HandleFunc("/workspaces", workspaceHandler.List).Methods("GET")
	api.HandleFunc("/workspaces", workspaceHandler.Open).Methods("POST")

	commandHandler := handlers.NewCommandHandler(deps.Dispatcher)
	api.HandleFunc("/commands", commandHandler.Names).Methods("GET")
	api.HandleFunc("/commands", commandHandler.Send).Methods("POST")
	api.HandleFunc("/instance", commandHandler.Instance).Methods("POST")

	eventHandler := handlers.NewEventHandler(deps.EventBus)
	api.HandleFunc("/events", eventHandler.History).Methods("GET")
	api.HandleFunc("/events/ws", eventHandler.WebSocket).Methods("GET")

	return r
}

// Server represents the API server.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	logger *zap.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		router: NewRouter(deps),
		cfg:    cfg,
		logger: logger.Named("api"),
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the root handler with CORS applied ahead of routing.
func (s *Server) Handler() http.Handler {
	return middleware.CORS(s.router)
}

// Listen binds the listening socket. Addr is valid afterwards.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the base URL of the bound server.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// Serve serves requests until Shutdown. It binds first if needed.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	srv, ln := s.server, s.listener
	s.mu.Unlock()

	s.logger.Info("control API listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("shutting down control API")

	// Create a timeout context if none provided
	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return srv.Shutdown(shutdownCtx)
}
