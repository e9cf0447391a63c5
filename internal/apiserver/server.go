// Package apiserver serves the local metadata lookup API.
//
// Colocated logging and monitoring agents resolve short-lived resource
// identifiers to monitored-resource descriptors through this server:
//
//	GET /monitoredResource/{id} → 200 {"type":...,"labels":{...}}
//	                              404 {"status_code":404,"error":"Not found"}
//	GET /healthz                → 200 ok / 503 with unhealthy components
//
// Requests route through an immutable longest-prefix Dispatcher shared by
// all workers. Concurrency is capped by wrapping the shared listener in
// netutil.LimitListener, so at most Workers connections are served at once.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/etsangsplk/metadata-agent/internal/health"
	"github.com/etsangsplk/metadata-agent/internal/logging"
	"github.com/etsangsplk/metadata-agent/internal/store"
)

// monitoredResourcePrefix is the fixed prefix of the lookup route. The
// identifier is everything after it.
const monitoredResourcePrefix = "/monitoredResource/"

// Config holds API server configuration.
type Config struct {
	// Host to bind, e.g. "0.0.0.0" or "127.0.0.1".
	Host string

	// Port to bind. Port 0 picks a free port (used by tests); the bound
	// address is available through Addr after Run has started.
	Port int

	// Workers caps the number of concurrently served connections. Zero or
	// negative means no cap.
	Workers int

	// Verbose is sampled per request for dispatch logging. Nil means never.
	Verbose func() bool

	// ShutdownTimeout bounds the graceful drain on stop. Defaults to 5s.
	ShutdownTimeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// Server is the local HTTP API server.
type Server struct {
	store      *store.Store
	checker    *health.Checker
	dispatcher *Dispatcher
	cfg        Config
	logger     *slog.Logger

	listener net.Listener

	// missLog throttles lookup-miss warnings. As more resource mappings are
	// registered these become less frequent; without the limiter a busy
	// logging agent probing unknown ids would dominate the log.
	missLog *rate.Limiter
}

// New creates a Server answering lookups from st and health from checker.
func New(st *store.Store, checker *health.Checker, cfg Config) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		store:   st,
		checker: checker,
		cfg:     cfg,
		logger:  logging.Default(cfg.Logger).With("component", "apiserver"),
		missLog: rate.NewLimiter(rate.Every(time.Second), 10),
	}
	s.dispatcher = NewDispatcher([]Route{
		{Method: http.MethodGet, Prefix: monitoredResourcePrefix, Handle: s.handleMonitoredResource},
		{Method: http.MethodGet, Prefix: "/healthz", Handle: s.handleHealthz},
	}, cfg.Verbose, cfg.Logger)
	return s
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails. On cancellation it drains in-flight connections before returning.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener

	serveListener := listener
	if s.cfg.Workers > 0 {
		serveListener = netutil.LimitListener(listener, s.cfg.Workers)
	}

	server := &http.Server{
		Handler: s.dispatcher,
	}

	s.logger.Info("api server starting",
		"addr", listener.Addr().String(), "workers", s.cfg.Workers)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(serveListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			// Drain timed out; close the transport forcibly.
			_ = server.Close()
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound listener address. Only valid after Run has started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleMonitoredResource answers GET /monitoredResource/{id}.
func (s *Server) handleMonitoredResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, monitoredResourcePrefix)

	res, err := s.store.LookupResource(id)
	if err != nil {
		if s.missLog.Allow() {
			s.logger.Warn("no matching resource", "id", id)
		}
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	s.logger.Debug("resolved resource", "id", id, "resource", res.String())
	WriteJSON(w, res)
}

// handleHealthz answers GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil || s.checker.Healthy() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	unhealthy := strings.Join(s.checker.Unhealthy(), ", ")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("unhealthy: " + unhealthy))
}
