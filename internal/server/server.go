// Package server exposes the live preview over HTTP: the document API, the
// rendered pages and the per-document update streams (server-sent events and
// WebSocket).
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alicanerdogan/livemarkdown/internal/config"
	"github.com/alicanerdogan/livemarkdown/internal/errors"
	"github.com/alicanerdogan/livemarkdown/internal/logging"
	"github.com/alicanerdogan/livemarkdown/internal/preview"
	"github.com/alicanerdogan/livemarkdown/internal/registry"
	"github.com/alicanerdogan/livemarkdown/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Documents is the part of preview.Service the handlers use.
type Documents interface {
	Register(path string) string
	Remove(id string) error
	UpdatePosition(id, position string) error
	OpenSession(id string) (*session.Session, error)
	ListAll() []registry.Document
	Locate(id string) (string, bool)
	RenderDocument(id string) (preview.Page, error)
	Stats() preview.Stats
}

type Options struct {
	Logger logging.Logger
	// OpenBrowser opens url in the user's browser. Defaults to the
	// platform opener.
	OpenBrowser func(url string) error
}

// Server serves documents with live reload capability
type Server struct {
	config      *config.Config
	docs        Documents
	logger      logging.Logger
	openBrowser func(url string) error

	serverMutex sync.RWMutex // Protects httpServer and addr
	httpServer  *http.Server
	addr        string
}

// New creates a server for docs. It does not listen until Start is called.
func New(cfg *config.Config, docs Documents, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	opener := opts.OpenBrowser
	if opener == nil {
		opener = openBrowser
	}
	return &Server{
		config:      cfg,
		docs:        docs,
		logger:      logger.WithComponent("server"),
		openBrowser: opener,
		addr:        cfg.Server.Addr(),
	}
}

// Handler returns the route table wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/document", s.handleCreateDocument)
	mux.HandleFunc("DELETE /api/document/{id}", s.handleDeleteDocument)
	mux.HandleFunc("POST /api/document/{id}/open", s.handleOpenDocument)
	mux.HandleFunc("POST /api/document/{id}/position", s.handleUpdatePosition)
	mux.HandleFunc("GET /document/{id}", s.handleDocument)
	mux.HandleFunc("GET /document/{id}/updates", s.handleUpdates)
	mux.HandleFunc("GET /document/{id}/ws", s.handleWebSocket)

	return s.addMiddleware(mux)
}

// Start listens on the configured address and serves until ctx is cancelled.
// A listen failure is returned as a network error with ErrCodePortInUse.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return errors.NewNetworkError(errors.ErrCodePortInUse,
			fmt.Sprintf("cannot listen on %s", s.config.Server.Addr()), err)
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.addr = listener.Addr().String()
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "listening", "addr", s.Addr())

	if s.config.Server.Open {
		go s.open(ctx, s.URL("/"))
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn(shutdownCtx, err, "graceful shutdown failed")
			}
		case <-done:
		}
	}()

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return errors.NewNetworkError(errors.ErrCodeInternalError, "server error", err)
	}
	return nil
}

// Shutdown gracefully stops the server. Open update streams end because
// their request contexts are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMutex.RLock()
	server := s.httpServer
	s.serverMutex.RUnlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Addr is the address the server listens on, which differs from the
// configured one when port 0 was requested.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.addr
}

// URL returns an absolute http URL for path on this server.
func (s *Server) URL(path string) string {
	return "http://" + s.Addr() + path
}

func (s *Server) open(ctx context.Context, url string) {
	if err := s.openBrowser(url); err != nil {
		s.logger.Warn(ctx, err, "failed to open browser", "url", url)
	}
}
