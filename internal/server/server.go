// Package server assembles the HTTP surface: middleware chain, health and
// version endpoints, the task-scoped API routes and the optional admin
// endpoint.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/forgelabs/promptforge/internal/config"
	apperrors "github.com/forgelabs/promptforge/internal/errors"
	"github.com/forgelabs/promptforge/internal/server/handlers"
	"github.com/forgelabs/promptforge/internal/server/middleware"
)

// adminTokenEnv enables the admin endpoint when set. The endpoint is not
// registered at all without it.
const adminTokenEnv = "PROMPTFORGE_ADMIN_TOKEN"

// Admin signals accepted by the signal endpoint.
const (
	SignalShutdown = "shutdown"
	SignalReload   = "reload"
)

// Server is the API server. Build it with New, run it with Start and stop
// it with Shutdown.
type Server struct {
	host   string
	port   int
	logger *zap.Logger

	jobs  *handlers.JobsHandler
	evals *handlers.EvalsHandler

	router  chi.Router
	signals chan string

	mu         sync.Mutex
	httpServer *http.Server
}

// Option customizes the server during New.
type Option func(*Server)

// WithLogger sets the logger used for request logging and lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTaskHandlers mounts the optimization-job and eval routes under
// /api/projects/{projectID}/tasks/{taskID}. Either handler may be nil.
func WithTaskHandlers(jobs *handlers.JobsHandler, evals *handlers.EvalsHandler) Option {
	return func(s *Server) {
		s.jobs = jobs
		s.evals = evals
	}
}

// New creates a server listening on host:port. Port 0 picks an ephemeral
// port on Start.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:    host,
		port:    port,
		logger:  zap.NewNop(),
		signals: make(chan string, 4),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Port returns the configured port, or the bound one once Start has
// listened on port 0.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Handler returns the assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Signals delivers admin signals (shutdown, reload) to the serve loop.
func (s *Server) Signals() <-chan string {
	return s.signals
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteCode(w, req, http.StatusNotFound, apperrors.CodeNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteCode(w, req, http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	s.registerAdminEndpoint(r)

	if s.jobs != nil || s.evals != nil {
		r.Route("/api/projects/{projectID}/tasks/{taskID}", func(r chi.Router) {
			if s.jobs != nil {
				s.jobs.Mount(r)
			}
			if s.evals != nil {
				s.evals.Mount(r)
			}
		})
	}

	return r
}

// registerAdminEndpoint wires POST /admin/signal when the admin token is
// configured. Without a token the route does not exist.
func (s *Server) registerAdminEndpoint(r chi.Router) {
	token := strings.TrimSpace(os.Getenv(adminTokenEnv))
	if token == "" {
		return
	}
	r.Post("/admin/signal", s.handleAdminSignal(token))
	s.logger.Info("admin signal endpoint enabled")
}

type adminSignalRequest struct {
	Signal string `json:"signal"`
}

func (s *Server) handleAdminSignal(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		supplied := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			apperrors.WriteCode(w, r, http.StatusUnauthorized, apperrors.CodeUnauthorized, "invalid admin token")
			return
		}

		var req adminSignalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteCode(w, r, http.StatusBadRequest, apperrors.CodeValidationFailed, "invalid signal payload")
			return
		}
		if req.Signal != SignalShutdown && req.Signal != SignalReload {
			apperrors.WriteCode(w, r, http.StatusBadRequest, apperrors.CodeValidationFailed, "unknown signal "+strconv.Quote(req.Signal))
			return
		}

		select {
		case s.signals <- req.Signal:
		default:
			// A full queue means the serve loop is already acting on
			// earlier signals.
		}
		s.logger.Info("admin signal accepted", zap.String("signal", req.Signal))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "signal": req.Signal})
	}
}

// Start listens and serves until Shutdown or a listener error. It returns
// nil after a clean Shutdown.
func (s *Server) Start() error {
	read, write, idle := serverTimeouts()

	s.mu.Lock()
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port = tcp.Port
	}
	s.httpServer = srv
	port := s.port
	s.mu.Unlock()

	s.logger.Info("server listening", zap.String("host", s.host), zap.Int("port", port))

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// serverTimeouts reads listener timeouts from the loaded config, with the
// documented defaults when no config has been loaded.
func serverTimeouts() (read, write, idle time.Duration) {
	read, write, idle = 30*time.Second, 30*time.Second, 120*time.Second
	if cfg := config.GetConfig(); cfg != nil {
		if cfg.Server.ReadTimeout > 0 {
			read = cfg.Server.ReadTimeout
		}
		if cfg.Server.WriteTimeout > 0 {
			write = cfg.Server.WriteTimeout
		}
		if cfg.Server.IdleTimeout > 0 {
			idle = cfg.Server.IdleTimeout
		}
	}
	return read, write, idle
}
