package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voiceloop/internal/domain"
	"voiceloop/internal/logging"
)

var log = logging.L("metrics")

// Server exposes the Prometheus scrape endpoint plus a small JSON
// status surface for poking at a running loop.
type Server struct {
	server   *http.Server
	listener net.Listener
	started  time.Time
}

func NewServer(addr string, statusFn func() domain.Status, gatherer prometheus.Gatherer) *Server {
	s := &Server{started: time.Now()}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statusFn()); err != nil {
			log.Error("failed to encode status", logging.KeyError, err)
		}
	})

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

// Start binds the listen address and serves in the background. Binding
// errors are returned synchronously so a bad address fails startup.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		log.Info("debug listener started", "addr", listener.Addr().String())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("debug listener failed", logging.KeyError, err)
		}
	}()
	return nil
}

// Addr reports the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
