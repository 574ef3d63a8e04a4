package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns GET /health handler. A failing store degrades its own field
// instead of the status code. The "redis" field is only reported when cache is non-nil.
func NewHealthHandler(serviceName string, db, cache Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := map[string]string{
			"status":   "healthy",
			"service":  serviceName,
			"database": pingStatus(ctx, db, "database", logger),
		}
		if cache != nil {
			body["redis"] = pingStatus(ctx, cache, "redis", logger)
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func pingStatus(ctx context.Context, p Pinger, name string, logger *zap.Logger) string {
	if err := p.Ping(ctx); err != nil {
		logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// NewRootHandler returns GET / handler.
func NewRootHandler(serviceName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": serviceName,
			"health":  "/health",
			"metrics": "/metrics",
		})
	}
}
