// Package server exposes editing sessions over HTTP and streams their patches
// to live preview clients.
//
// Routes:
//
//	POST   /api/sessions                 start (or restart) a session
//	GET    /api/sessions                 list active sessions
//	GET    /api/sessions/{id}            session info
//	DELETE /api/sessions/{id}            close a session
//	POST   /api/sessions/{id}/changes    apply one operation
//	GET    /api/sessions/{id}/code       current text
//	GET    /api/sessions/{id}/history    change records
//	GET    /api/sessions/{id}/preview    live preview page (?fragment=1 for the body only)
//	GET    /api/components               component catalog
//	GET    /health                       liveness and counters
//	GET    /ws?session={id}              patch stream
//
// Session ids containing slashes must be path-escaped.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/livecanvas/internal/config"
	editorerrors "github.com/conneroisu/livecanvas/internal/errors"
	"github.com/conneroisu/livecanvas/internal/logging"
	"github.com/conneroisu/livecanvas/internal/preview"
	"github.com/conneroisu/livecanvas/internal/registry"
	"github.com/conneroisu/livecanvas/internal/session"
	"github.com/conneroisu/livecanvas/internal/websocket"
)

const (
	shutdownTimeout = 10 * time.Second
	readTimeout     = 15 * time.Second
	idleTimeout     = 2 * time.Minute
)

// Server routes HTTP requests to the session manager, the component
// registry, the preview renderer and the websocket hub.
//
// Invariants:
//   - httpServer is only touched under serverMutex
//   - the router is built once, in New
type Server struct {
	cfg        *config.Config
	sessions   *session.Manager
	components *registry.ComponentRegistry
	hub        *websocket.Hub
	preview    *preview.Renderer
	limiter    *RateLimiter
	logger     logging.Logger
	errHandler *editorerrors.ErrorHandler

	router    chi.Router
	startedAt time.Time

	serverMutex sync.Mutex
	httpServer  *http.Server
}

// New wires a server. The hub is owned by the caller, which shuts it down.
func New(
	cfg *config.Config,
	sessions *session.Manager,
	components *registry.ComponentRegistry,
	hub *websocket.Hub,
	logger logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Server{
		cfg:        cfg,
		sessions:   sessions,
		components: components,
		hub:        hub,
		preview:    preview.NewRenderer(cfg.PreviewOptions()),
		logger:     logger.WithComponent("server"),
		startedAt:  time.Now(),
	}
	s.errHandler = editorerrors.NewErrorHandler(s.logger)
	if cfg.Server.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.Server.RateLimit, s.logger)
	}
	s.router = s.routes()

	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(SecurityMiddleware(SecurityConfigFromAppConfig(s.cfg), s.logger))

	limited := func(next http.Handler) http.Handler { return next }
	if s.limiter != nil {
		limited = s.limiter.Middleware
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.hub.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/components", s.handleComponents)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.With(limited).Post("/", s.handleStartSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleSessionInfo)
				r.With(limited).Delete("/", s.handleCloseSession)
				r.With(limited).Post("/changes", s.handleApplyChange)
				r.Get("/code", s.handleCode)
				r.Get("/history", s.handleHistory)
				r.Get("/preview", s.handlePreview)
			})
		})
	})

	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe listens on the configured address and serves until ctx is
// done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address(), err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.serverMutex.Lock()
	s.httpServer = srv
	s.serverMutex.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMutex.Lock()
	srv := s.httpServer
	s.serverMutex.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info(ctx, "Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	return nil
}
