package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veriprint/pkg/platform/httputil"
	"veriprint/pkg/platform/middleware/requestmeta"
)

// HealthChecker reports readiness of a backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter assembles the full HTTP surface: domain endpoints, health, and
// Prometheus metrics.
func NewRouter(h *Handler, checks map[string]HealthChecker) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestmeta.RequestID)
	r.Use(requestmeta.RequestTime)
	r.Use(requestmeta.ClientInfo)

	h.Register(r)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check.Health(req.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
			}
		}
		httputil.WriteJSON(w, status, body)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
