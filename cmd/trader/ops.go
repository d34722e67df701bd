package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/metrics"
)

// pinger reports whether the backing store is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// opsServer serves health probes and the Prometheus scrape endpoint.
type opsServer struct {
	server *http.Server
	store  pinger
	port   int
}

func newOpsServer(port int, store pinger) *opsServer {
	return &opsServer{store: store, port: port}
}

// Start begins serving in a goroutine; errors other than a clean
// shutdown are logged, not returned.
func (o *opsServer) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", o.handleHealth)
	mux.HandleFunc("/readiness", o.handleReadiness)
	metrics.RegisterHandlers(mux)

	o.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", o.port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", o.port).Msg("Ops server started (health, metrics)")
		if err := o.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Ops server error")
		}
	}()
}

// Stop gracefully shuts down the ops server.
func (o *opsServer) Stop(ctx context.Context) error {
	if o.server == nil {
		return nil
	}
	return o.server.Shutdown(ctx)
}

// handleHealth reports process liveness.
func (o *opsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "trader",
		"timestamp": time.Now().Unix(),
	})
}

// handleReadiness reports whether the database is reachable; the
// engine cannot make progress without it.
func (o *opsServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if o.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"reason": "no database",
		})
		return
	}
	if err := o.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"reason": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().Unix(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
