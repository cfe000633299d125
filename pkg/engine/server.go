// Server lifecycle for the dispatch and admin HTTP listeners.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rowapi/rowapi/pkg/config"
	"github.com/rowapi/rowapi/pkg/logging"
)

// Server runs the dispatch listener and, when an admin handler is set, the
// definition-management listener on its own port.
type Server struct {
	cfg     *config.Config
	handler http.Handler
	admin   http.Handler
	log     *slog.Logger

	mu          sync.Mutex
	running     bool
	httpServer  *http.Server
	adminServer *http.Server
	startTime   time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAdminHandler mounts the definition-management API on the admin port.
func WithAdminHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.admin = h
	}
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer creates a server for the given dispatch handler.
func NewServer(cfg *config.Config, handler http.Handler, opts ...ServerOption) *Server {
	s := &Server{
		cfg:     cfg,
		handler: handler,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start brings up the listeners. It returns once both are accepting.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	readTimeout := time.Duration(s.cfg.ReadTimeout) * time.Second
	writeTimeout := time.Duration(s.cfg.WriteTimeout) * time.Second

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTPPort),
		Handler:      s.handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	s.log.Info("starting dispatch server", "port", s.cfg.HTTPPort)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("dispatch server error", "error", err)
		}
	}()

	if s.admin != nil {
		s.adminServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", s.cfg.AdminPort),
			Handler:      s.admin,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		}
		s.log.Info("starting admin server", "port", s.cfg.AdminPort)
		go func() {
			if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Error("admin server error", "error", err)
			}
		}()
	}

	s.running = true
	s.startTime = time.Now()
	return nil
}

// Stop drains in-flight requests and shuts both listeners down.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatch shutdown: %w", err))
		}
	}

	s.running = false
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// IsRunning reports whether Start has succeeded and Stop has not been called.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Uptime returns seconds since start, 0 when not running.
func (s *Server) Uptime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return int(time.Since(s.startTime).Seconds())
}
