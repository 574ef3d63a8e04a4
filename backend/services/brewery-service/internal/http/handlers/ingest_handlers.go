package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/service"
)

// IngestHandlers serves the device facing endpoints.
type IngestHandlers struct {
	ingest *service.IngestService
	logger *zap.Logger
}

// NewIngestHandlers builds IngestHandlers.
func NewIngestHandlers(ingest *service.IngestService, logger *zap.Logger) *IngestHandlers {
	return &IngestHandlers{ingest: ingest, logger: logger}
}

// Single handles POST /mqtt/test.
func (h *IngestHandlers) Single(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := decodeJSON(w, r, &payload); err != nil || payload == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	result, err := h.ingest.Ingest(r.Context(), payload)
	if err != nil {
		if service.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to store sensor data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"message":   "Sensor data stored successfully",
		"type":      result.Type,
		"device_id": result.DeviceID,
	})
}

// Batch handles POST /mqtt/test/batch. Elements that are not JSON objects are reported
// as failed items.
func (h *IngestHandlers) Batch(w http.ResponseWriter, r *http.Request) {
	var items []json.RawMessage
	if err := decodeJSON(w, r, &items); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "request body must be a JSON array")
		return
	}

	payloads := make([]map[string]interface{}, len(items))
	for i, item := range items {
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		var payload map[string]interface{}
		if err := dec.Decode(&payload); err != nil {
			continue
		}
		payloads[i] = payload
	}

	writeJSON(w, http.StatusOK, h.ingest.IngestBatch(r.Context(), payloads))
}

// SensorData handles POST /sensor/data.
func (h *IngestHandlers) SensorData(w http.ResponseWriter, r *http.Request) {
	var req service.SensorValue
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}

	reading, err := h.ingest.IngestValue(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingField):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case service.IsValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Failed to store sensor data")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": fmt.Sprintf("%s data stored successfully", req.Type),
		"id":      reading.ID,
	})
}
