// Package metrics provides the Prometheus instrumentation for the
// trading pipeline and a small HTTP server that exposes the scrape
// endpoint on its own port.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server exposes the Prometheus scrape endpoint and a liveness probe
// on a dedicated port, separate from the public API surface.
type Server struct {
	addr   string
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates a scrape server listening on the given port.
func NewServer(port int, log zerolog.Logger) *Server {
	return &Server{
		addr: fmt.Sprintf(":%d", port),
		log:  log.With().Str("component", "metrics_server").Logger(),
	}
}

// Start begins serving in a goroutine. The returned error covers
// construction only; listen failures are logged from the goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	RegisterHandlers(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("Starting metrics server")
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			var opErr *net.OpError
			if errors.As(err, &opErr) {
				s.log.Error().Err(err).Str("addr", s.addr).Msg("Metrics server failed to listen")
				return
			}
			s.log.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Shutdown stops the server, waiting for in-flight scrapes up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.log.Info().Msg("Shutting down metrics server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}
