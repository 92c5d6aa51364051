package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/supporttools/compose-doctor/pkg/types"
)

// Logger provides optional logging functionality for the metrics server.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// StatusFunc builds the JSON document served at /status. It must return a
// value that json.Marshal accepts.
type StatusFunc func() interface{}

// ResetFunc clears the repair record for one (service, kind) key. It returns
// true when a record existed.
type ResetFunc func(service string, kind types.FailureKind) bool

// Server exposes the Prometheus metrics endpoint together with the small
// operational surface: health probe, status report, and manual reset.
type Server struct {
	registry *prometheus.Registry
	address  string
	path     string
	status   StatusFunc
	reset    ResetFunc
	logger   Logger

	httpServer *http.Server
}

// NewServer creates a metrics server listening on address, serving metrics
// at path. status and reset are optional; without them the corresponding
// endpoints report that the surface is unavailable.
func NewServer(registry *prometheus.Registry, address, path string) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if address == "" {
		return nil, fmt.Errorf("listen address cannot be empty")
	}
	if path == "" {
		path = "/metrics"
	}
	return &Server{
		registry: registry,
		address:  address,
		path:     path,
	}, nil
}

// SetLogger sets an optional logger for the server.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// SetStatusFunc registers the status report builder.
func (s *Server) SetStatusFunc(fn StatusFunc) {
	s.status = fn
}

// SetResetFunc registers the manual reset handler.
func (s *Server) SetResetFunc(fn ResetFunc) {
	s.reset = fn
}

// Start begins serving in a background goroutine. It returns immediately;
// listener errors other than graceful shutdown are logged.
func (s *Server) Start() error {
	if s.httpServer != nil {
		return fmt.Errorf("server already started")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/reset", s.handleReset)

	s.httpServer = &http.Server{
		Addr:              s.address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logInfof("Serving metrics on %s%s", s.address, s.path)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logErrorf("Metrics server failed: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "status surface not configured", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.status()); err != nil {
		s.logErrorf("Failed to encode status report: %v", err)
	}
}

// handleReset clears one repair record: POST /reset?service=web&kind=unhealthy.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.reset == nil {
		http.Error(w, "reset surface not configured", http.StatusServiceUnavailable)
		return
	}

	service := r.URL.Query().Get("service")
	kind := types.FailureKind(r.URL.Query().Get("kind"))
	if service == "" || kind == "" {
		http.Error(w, "service and kind query parameters are required", http.StatusBadRequest)
		return
	}
	if !kind.Valid() {
		http.Error(w, fmt.Sprintf("unknown failure kind %q", kind), http.StatusBadRequest)
		return
	}

	existed := s.reset(service, kind)
	s.logInfof("Manual reset for %s/%s (existed=%v)", service, kind, existed)

	w.Header().Set("Content-Type", "application/json")
	if !existed {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"reset":false}`)
		return
	}
	fmt.Fprintln(w, `{"reset":true}`)
}

// logInfof logs an informational message if a logger is configured.
func (s *Server) logInfof(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Infof("[MetricsServer] "+format, args...)
	}
}

// logErrorf logs an error message if a logger is configured.
func (s *Server) logErrorf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Errorf("[MetricsServer] "+format, args...)
	}
}
