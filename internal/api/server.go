package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/randalmurphal/scopesync/internal/connection"
	"github.com/randalmurphal/scopesync/internal/teamwork"
)

const (
	// maxBodyBytes caps request bodies.
	maxBodyBytes = 1 << 20

	defaultShutdownTimeout = 5 * time.Second
)

// ConnectionService is what the API serves. connection.Service implements it.
type ConnectionService interface {
	AddConnection(ctx context.Context, req connection.NewConnection) (*connection.Connection, error)
	RemoveConnection(ctx context.Context, id string) error
	GetConnection(ctx context.Context, id string) (*connection.Connection, error)
	ListConnections(ctx context.Context) ([]*connection.Connection, error)
	GetProjects(ctx context.Context, connectionID string) ([]teamwork.Project, error)
	GetTaskLists(ctx context.Context, connectionID, projectID string) ([]connection.TaskList, error)
	GetTasks(ctx context.Context, connectionID, taskListID string) ([]*connection.Task, error)
	GetTask(ctx context.Context, connectionID, taskID string) (*connection.Task, error)
	PutEstimation(ctx context.Context, connectionID, taskID string, hours float64) error
}

var _ ConnectionService = (*connection.Service)(nil)

// Server is the scopesync API server.
type Server struct {
	addr            string
	mux             *http.ServeMux
	logger          *slog.Logger
	svc             ConnectionService
	feed            *FeedHandler
	shutdownTimeout time.Duration
}

// Config holds server configuration.
type Config struct {
	Addr            string
	Service         ConnectionService
	Feed            connection.Feed
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
}

// New creates a new API server.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("api: connection service is required")
	}
	if cfg.Feed == nil {
		return nil, errors.New("api: connection feed is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	s := &Server{
		addr:            cfg.Addr,
		mux:             http.NewServeMux(),
		logger:          logger.With("component", "api"),
		svc:             cfg.Service,
		feed:            NewFeedHandler(cfg.Feed, logger),
		shutdownTimeout: timeout,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Feed returns the websocket change feed handler.
func (s *Server) Feed() *FeedHandler {
	return s.feed
}

// StartContext serves until ctx is done, then shuts down gracefully.
func (s *Server) StartContext(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down API server")
		s.feed.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("API server shutdown", "error", err)
		}
	}()

	s.logger.Info("starting API server", "addr", s.addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", s.addr, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"subscribers": s.feed.ConnectionCount(),
	})
}
