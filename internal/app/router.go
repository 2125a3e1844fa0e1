// Package app wires the HTTP surface together.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/httpserver"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/observability"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/config"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/provision"
)

// NewRouter assembles the full route tree with middleware, CORS, rate
// limiting, and operational endpoints.
func NewRouter(cfg config.Config, h *httpserver.Handler, prov *provision.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(httpserver.RequestID)
	r.Use(httpserver.Recoverer)
	r.Use(httpserver.AccessLog)
	r.Use(httpserver.SecurityHeaders)
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", httpserver.DownloadKeyHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if !prov.Ready() {
			http.Error(w, "provisioning", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.With(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute)).
			Post("/generate", h.Generate)
		api.Get("/jobs/{jobId}", h.JobStatus)
		api.Get("/jobs/{jobId}/preview.png", h.PreviewPNG)
		api.Get("/jobs/{jobId}/result.html", h.ResultHTML)
	})

	return r
}

func splitOrigins(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"http://localhost:5173"}
	}
	return out
}
