// Package status exposes the running engine over HTTP: Prometheus metrics
// on /metrics, a JSON snapshot on /status and a liveness probe on /healthz.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Snapshot returns the value served on /status. It must be safe to call
// from any goroutine.
type Snapshot func() any

// Server sirve métricas y estado del engine.
type Server struct {
	srv *http.Server
}

// NewServer builds the server. gatherer may be nil, in which case /metrics
// is not mounted.
func NewServer(addr string, gatherer prometheus.Gatherer, snapshot Snapshot) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           Handler(gatherer, snapshot),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Handler builds the mux. Exported for tests.
func Handler(gatherer prometheus.Gatherer, snapshot Snapshot) http.Handler {
	mux := http.NewServeMux()
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			slog.Warn("status: encode snapshot", "err", err)
		}
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("status.Run: listen %s: %w", s.srv.Addr, err)
	}
	slog.Info("status: listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status.Run: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status.Run: shutdown: %w", err)
	}
	return nil
}
