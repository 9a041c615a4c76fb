// Package admin serves the HTTP admin endpoints of a task worker.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/fabric"
	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/types"
)

// StatusProvider reports the status of a running task.
type StatusProvider interface {
	Status() fabric.Status
}

// NewRouter returns the admin handler.
//
// Routes:
//
//	GET /healthz   200 when started and connected to the store, 503 otherwise
//	GET /status    task status as JSON
//	GET /metrics   Prometheus metrics of gatherer
func NewRouter(status StatusProvider, gatherer prometheus.Gatherer, logger types.Logger) http.Handler {
	logger = logging.OrNop(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		st := status.Status()
		code := http.StatusOK
		if st.State != fabric.StateStarted.String() || !st.Connected {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"state":     st.State,
			"connected": st.Connected,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}, logger)
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, status.Status(), logger)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any, logger types.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write admin response", "error", err)
	}
}
