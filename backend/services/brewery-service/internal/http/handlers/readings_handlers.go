package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/models"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/service"
)

// ReadingsHandlers serves the authenticated read endpoints.
type ReadingsHandlers struct {
	readings *service.ReadingsService
	logger   *zap.Logger
}

// NewReadingsHandlers builds ReadingsHandlers.
func NewReadingsHandlers(readings *service.ReadingsService, logger *zap.Logger) *ReadingsHandlers {
	return &ReadingsHandlers{readings: readings, logger: logger}
}

// List handles GET /readings/{kind}?days=N.
func (h *ReadingsHandlers) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := models.ParseKind(mux.Vars(r)["kind"])
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	days, err := intParam(r, "days", service.DefaultDays)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	readings, err := h.readings.List(r.Context(), currentUser(r), kind, days)
	if err != nil {
		h.fail(w, "list readings", err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// Latest handles GET /readings/latest?limit=N.
func (h *ReadingsHandlers) Latest(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", service.DefaultLatestLimit)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	latest, err := h.readings.Latest(r.Context(), currentUser(r), limit)
	if err != nil {
		h.fail(w, "latest readings", err)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

// Stats handles GET /readings/stats.
func (h *ReadingsHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.readings.Stats(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, "reading stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Clear handles DELETE /readings/clear.
func (h *ReadingsHandlers) Clear(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.readings.ClearAll(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, "clear readings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "All sensor data cleared",
		"deleted": deleted,
	})
}

func (h *ReadingsHandlers) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, service.ErrUnknownKind):
		writeError(w, http.StatusNotFound, "Not Found")
	case errors.Is(err, service.ErrInvalidQuery):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("failed to "+op, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}
