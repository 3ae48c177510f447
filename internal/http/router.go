package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HealthCheck 依赖检查（redis / postgres ping）
type HealthCheck func(ctx context.Context) error

// NewRouter 注册全部路由
func NewRouter(h *DashboardHandler, m *metrics.Metrics, checks map[string]HealthCheck, logger *zap.Logger) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(m.Middleware)

	mux.Get("/health", healthHandler(checks, logger))
	if m != nil {
		mux.Method(http.MethodGet, "/metrics", m.Handler())
	}

	mux.Route("/api/v1/dashboard", func(r chi.Router) {
		r.Get("/", h.GetDashboard)
		r.Post("/refresh", h.Refresh)
		r.Get("/selection", h.GetSelection)
		r.Post("/selection", h.SelectSensor)
		r.Delete("/selection", h.ClearSelection)
		r.Get("/sensors/{id}/comparison", h.GetComparison)
		r.Get("/status", h.GetStatus)
		r.Get("/export.xlsx", h.Export)
	})
	return mux
}

func healthHandler(checks map[string]HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		deps := make(map[string]string, len(checks))
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				healthy = false
				deps[name] = err.Error()
				logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
				continue
			}
			deps[name] = "ok"
		}

		body := map[string]any{"status": "ok", "dependencies": deps}
		if !healthy {
			body["status"] = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}
