// Package httpserver exposes the ops surface of the gateway: health,
// readiness, statistics and Prometheus metrics. There is no public API; the
// simulation talks to the facade in-process.
package httpserver

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polisim/ai-gateway/internal/domain"
)

// StatsSource is the read-only view the router needs from the facade.
type StatsSource interface {
	GetStatistics() domain.ServiceStats
}

// BuildRouter constructs the ops HTTP handler.
func BuildRouter(stats StatsSource, secrets domain.SecretProvider, keyName string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", readyzHandler(secrets, keyName))
	r.Get("/stats", statsHandler(stats))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })
	return r
}

// readyzHandler reports not-ready when the backend credential is absent;
// the pipeline still runs on fallbacks in that state, but operators should
// know.
func readyzHandler(secrets domain.SecretProvider, keyName string) http.HandlerFunc {
	type check struct {
		Name string `json:"name"`
		OK   bool   `json:"ok"`
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		_, ok := secrets.GetSecret(keyName)
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": []check{{Name: "backend_credential", OK: ok}}})
	}
}

func statsHandler(stats StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, stats.GetStatistics())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", slog.Any("error", err))
	}
}
