package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	redisstore "github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/redis"
)

// DeviceLister lists recently active devices.
type DeviceLister interface {
	List(ctx context.Context) ([]redisstore.Device, error)
}

// ConnectedDevices reports devices with an open stream.
type ConnectedDevices interface {
	DeviceIDs() []string
}

// NewDevicesHandler returns GET /devices handler. presence may be nil when redis is not
// configured; the list is then empty.
func NewDevicesHandler(presence DeviceLister, streams ConnectedDevices, logger *zap.Logger) http.HandlerFunc {
	type response struct {
		Devices   []redisstore.Device `json:"devices"`
		Streaming []string            `json:"streaming"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Devices: []redisstore.Device{}, Streaming: []string{}}

		if presence != nil {
			devices, err := presence.List(r.Context())
			if err != nil {
				logger.Error("failed to list devices", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to list devices")
				return
			}
			resp.Devices = devices
		}
		if streams != nil {
			if ids := streams.DeviceIDs(); len(ids) > 0 {
				resp.Streaming = ids
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
