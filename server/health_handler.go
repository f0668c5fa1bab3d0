package server

import (
	"context"
	"net/http"
	"time"

	"voxpro/logger"
)

// HealthHandler reports whether the database answers.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status":  "ok",
		"storage": s.blobs.Name(),
		"clients": s.hub.ClientCount(),
	}

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		logger.Warn("health check: database unavailable", logger.ErrorField(err))
		status["status"] = "degraded"
		status["database"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["database"] = "ok"
	writeJSON(w, http.StatusOK, status)
}
