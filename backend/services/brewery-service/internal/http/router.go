package httpserver

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	brewhandlers "github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/http/handlers"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Root     http.HandlerFunc
	Health   http.HandlerFunc
	Register http.HandlerFunc
	Login    http.HandlerFunc
	UserInfo http.HandlerFunc
	Devices  http.HandlerFunc
	Stream   http.HandlerFunc
	Metrics  http.Handler

	Readings *brewhandlers.ReadingsHandlers
	Ingest   *brewhandlers.IngestHandlers

	AuthMiddleware func(http.Handler) http.Handler
	// Instrumentation wraps every route except the device stream. Optional.
	Instrumentation func(http.Handler) http.Handler
}

// NewRouter wires HTTP routes.
func NewRouter(deps RouterDeps) *mux.Router {
	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(notFound)
	root.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// The stream is hijacked by the websocket upgrader, so it stays outside instrumentation.
	if deps.Stream != nil {
		root.HandleFunc("/devices/stream", deps.Stream).Methods(http.MethodGet)
	}

	rtr := root.NewRoute().Subrouter()
	if deps.Instrumentation != nil {
		rtr.Use(deps.Instrumentation)
	}

	if deps.Metrics != nil {
		rtr.Path("/metrics").Handler(deps.Metrics).Methods(http.MethodGet)
	}
	if deps.Root != nil {
		rtr.HandleFunc("/", deps.Root).Methods(http.MethodGet)
	}
	rtr.HandleFunc("/health", deps.Health).Methods(http.MethodGet)

	rtr.HandleFunc("/register", deps.Register).Methods(http.MethodPost)
	rtr.HandleFunc("/login", deps.Login).Methods(http.MethodPost)

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, deps.AuthMiddleware)
	}

	rtr.Handle("/user_info", authenticated(deps.UserInfo)).Methods(http.MethodGet)
	if deps.Devices != nil {
		rtr.Handle("/devices", authenticated(deps.Devices)).Methods(http.MethodGet)
	}

	readings := rtr.PathPrefix("/readings").Subrouter()
	readings.Use(handlers.CompressHandler)
	readings.Handle("/stats", authenticated(deps.Readings.Stats)).Methods(http.MethodGet)
	readings.Handle("/latest", authenticated(deps.Readings.Latest)).Methods(http.MethodGet)
	readings.Handle("/clear", authenticated(deps.Readings.Clear)).Methods(http.MethodDelete)
	readings.Handle("/{kind}", authenticated(deps.Readings.List)).Methods(http.MethodGet)

	rtr.HandleFunc("/mqtt/test", deps.Ingest.Single).Methods(http.MethodPost)
	rtr.HandleFunc("/mqtt/test/batch", deps.Ingest.Batch).Methods(http.MethodPost)
	rtr.HandleFunc("/sensor/data", deps.Ingest.SensorData).Methods(http.MethodPost)

	return root
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"detail":"Not Found"}` + "\n"))
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_, _ = w.Write([]byte(`{"detail":"Method Not Allowed"}` + "\n"))
}

// CORS returns the cross-origin middleware for the configured origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", middleware.RequestIDHeader}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
	)
}
