package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the HTTP handler that serves the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RegisterHandlers mounts the scrape endpoint on an operations mux.
func RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", Handler())
}
