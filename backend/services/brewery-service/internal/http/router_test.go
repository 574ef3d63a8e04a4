package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/http/handlers"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/http/middleware"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/models"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/password"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/repository"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/service"
)

type memReadings struct {
	mu      sync.Mutex
	rows    map[models.Kind][]models.Reading
	ids     map[models.Kind]int64
	down    bool
	pingErr error
}

func newMemReadings() *memReadings {
	return &memReadings{rows: map[models.Kind][]models.Reading{}, ids: map[models.Kind]int64{}}
}

func (m *memReadings) Insert(_ context.Context, r *models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errors.New("connection refused")
	}
	m.ids[r.Kind]++
	r.ID = m.ids[r.Kind]
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	m.rows[r.Kind] = append(m.rows[r.Kind], *r)
	return nil
}

func (m *memReadings) InsertAll(ctx context.Context, rs []*models.Reading) error {
	for _, r := range rs {
		if err := m.Insert(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *memReadings) ListSince(_ context.Context, kind models.Kind, since time.Time) ([]models.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Reading, 0)
	for _, r := range m.rows[kind] {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memReadings) ListLatest(ctx context.Context, kind models.Kind, limit int) ([]models.Reading, error) {
	out, _ := m.ListSince(ctx, kind, time.Time{})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memReadings) DeleteAll(context.Context) (map[models.Kind]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := map[models.Kind]int64{}
	for _, kind := range models.AllKinds {
		deleted[kind] = int64(len(m.rows[kind]))
	}
	m.rows = map[models.Kind][]models.Reading{}
	return deleted, nil
}

func (m *memReadings) Stats(_ context.Context, kind models.Kind) (models.KindStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := models.KindStats{Count: int64(len(m.rows[kind]))}
	if n := len(m.rows[kind]); n > 0 {
		ts := m.rows[kind][n-1].Timestamp
		st.LastTimestamp = &ts
	}
	return st, nil
}

func (m *memReadings) Ping(context.Context) error { return m.pingErr }

type memUsers struct {
	mu    sync.Mutex
	users []*models.User
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = int64(len(m.users) + 1)
	u.IsActive = true
	u.CreatedAt = time.Now().UTC()
	stored := *u
	m.users = append(m.users, &stored)
	return nil
}

func (m *memUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username == username })
}

type testAPI struct {
	handler  http.Handler
	readings *memReadings
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	readings := newMemReadings()

	authSvc := service.NewAuthService(&memUsers{}, password.NewBcryptHasher(4), service.NewTokenService("secret", time.Hour), logger)
	ingestSvc := service.NewIngestService(readings, nil, nil, service.IngestConfig{}, logger)
	readingsSvc := service.NewReadingsService(readings, logger)

	router := NewRouter(RouterDeps{
		Health:         handlers.NewHealthHandler("Smart Brewery IoT Server", readings, nil, logger),
		Register:       handlers.NewRegisterHandler(authSvc, logger),
		Login:          handlers.NewLoginHandler(authSvc, logger),
		UserInfo:       handlers.NewUserInfoHandler(),
		Devices:        handlers.NewDevicesHandler(nil, nil, logger),
		Readings:       handlers.NewReadingsHandlers(readingsSvc, logger),
		Ingest:         handlers.NewIngestHandlers(ingestSvc, logger),
		AuthMiddleware: middleware.AuthMiddleware(authSvc, logger),
	})

	handler := middleware.Chain(router, middleware.RecoveryMiddleware(logger), middleware.LoggingMiddleware(logger), CORS(nil))
	return &testAPI{handler: handler, readings: readings}
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) login(t *testing.T) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/register", "", `{"email":"brewer@example.com","username":"brewer","password":"hops"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/login", "", `{"username":"brewer","password":"hops"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "bearer", resp.TokenType)
	return resp.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"Smart Brewery IoT Server","database":"healthy"}`, rec.Body.String())

	api.readings.pingErr = errors.New("down")
	rec = api.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"Smart Brewery IoT Server","database":"unhealthy"}`, rec.Body.String())
}

func TestRegisterLoginUserInfo(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t)

	rec := api.do(t, http.MethodGet, "/user_info", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var user map[string]interface{}
	decode(t, rec, &user)
	assert.Equal(t, "brewer", user["username"])
	assert.Equal(t, "brewer@example.com", user["email"])
	assert.NotContains(t, user, "hashed_password")
	assert.NotContains(t, user, "HashedPassword")

	rec = api.do(t, http.MethodPost, "/register", "", `{"email":"brewer@example.com","username":"other","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"Email already registered"}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/register", "", `{"email":"other@example.com","username":"brewer","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"Username already taken"}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/register", "", `{"email":"broken","username":"x","password":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(t, http.MethodPost, "/login", "", `{"username":"brewer","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"detail":"Incorrect username or password"}`, rec.Body.String())
}

func TestReadingsRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/user_info"},
		{http.MethodGet, "/readings/weight"},
		{http.MethodGet, "/readings/stats"},
		{http.MethodGet, "/readings/latest"},
		{http.MethodDelete, "/readings/clear"},
		{http.MethodGet, "/devices"},
	} {
		rec := api.do(t, tc.method, tc.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"), tc.path)

		rec = api.do(t, tc.method, tc.path, "not-a-token", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestIngestThenQuery(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t)

	rec := api.do(t, http.MethodPost, "/mqtt/test", "", `{"type":"weight","device_id":"rpi-01","weight_kg":25.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","message":"Sensor data stored successfully","type":"weight","device_id":"rpi-01"}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/mqtt/test", "", `{"type":"environment","device_id":"rpi-01","humidity_percent":65,"temperature_celsius":22,"pressure_hpa":1013.25}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/readings/weight?days=1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var weights []map[string]interface{}
	decode(t, rec, &weights)
	require.Len(t, weights, 1)
	assert.Equal(t, 25.5, weights[0]["weight_kg"])
	assert.Equal(t, "rpi-01", weights[0]["device_id"])

	rec = api.do(t, http.MethodGet, "/readings/outsideTemp", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var outside []map[string]interface{}
	decode(t, rec, &outside)
	require.Len(t, outside, 1)
	assert.Equal(t, 22.0, outside[0]["temperature_celsius"])

	rec = api.do(t, http.MethodGet, "/readings/ph", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/readings/stats", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]models.KindStats
	decode(t, rec, &stats)
	assert.Equal(t, int64(1), stats["weight"].Count)
	assert.Equal(t, int64(1), stats["pressure"].Count)
	assert.Equal(t, int64(0), stats["ph"].Count)

	rec = api.do(t, http.MethodGet, "/readings/latest?limit=5", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest map[string][]map[string]interface{}
	decode(t, rec, &latest)
	assert.Len(t, latest, len(models.AllKinds))
	assert.Len(t, latest["humidity"], 1)

	rec = api.do(t, http.MethodDelete, "/readings/clear", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared struct {
		Status  string           `json:"status"`
		Deleted map[string]int64 `json:"deleted"`
	}
	decode(t, rec, &cleared)
	assert.Equal(t, "success", cleared.Status)
	assert.Equal(t, int64(1), cleared.Deleted["weight"])
	assert.Equal(t, int64(1), cleared.Deleted["humidity"])

	rec = api.do(t, http.MethodGet, "/readings/weight", token, "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestQueryParameterValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t)

	for _, path := range []string{
		"/readings/weight?days=0",
		"/readings/weight?days=366",
		"/readings/weight?days=abc",
		"/readings/latest?limit=0",
		"/readings/latest?limit=101",
	} {
		rec := api.do(t, http.MethodGet, path, token, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, path)
	}

	rec := api.do(t, http.MethodGet, "/readings/co2", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Not Found"}`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/readings/weight?days=365", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestErrors(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/mqtt/test", "", `{"device_id":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"MissingField: type"}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/mqtt/test", "", `{"type":"co2","device_id":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "UnknownType")

	rec = api.do(t, http.MethodPost, "/mqtt/test", "", `{"type":"ph","device_id":"x","ph_value":15}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "InvalidValue")

	rec = api.do(t, http.MethodPost, "/mqtt/test", "", `[1]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	longID := strings.Repeat("d", models.MaxDeviceIDLength+1)
	rec = api.do(t, http.MethodPost, "/mqtt/test", "", `{"type":"weight","device_id":"`+longID+`","weight_kg":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "InvalidValue")
	stats, err := api.readings.Stats(context.Background(), models.KindWeight)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)

	api.readings.down = true
	rec = api.do(t, http.MethodPost, "/mqtt/test", "", `{"type":"weight","device_id":"x","weight_kg":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Failed to store sensor data"}`, rec.Body.String())
}

func TestBatch(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/mqtt/test/batch", "", `[
		{"type":"weight","device_id":"rpi-01","weight_kg":25.5},
		{"type":"ph","device_id":"rpi-01"},
		"not an object",
		{"type":"temperature","device_id":"rpi-01","temperature_celsius":18.5}
	]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result service.BatchResult
	decode(t, rec, &result)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, "success", result.Results[0].Status)
	assert.Equal(t, "error", result.Results[1].Status)
	assert.Contains(t, result.Results[1].Detail, "ph_value")
	assert.Equal(t, "error", result.Results[2].Status)
	assert.Equal(t, "success", result.Results[3].Status)

	rec = api.do(t, http.MethodPost, "/mqtt/test/batch", "", `{"type":"weight"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSensorData(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/sensor/data", "", `{"type":"temperature","value":22.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","message":"temperature data stored successfully","id":1}`, rec.Body.String())

	rows, _ := api.readings.ListSince(context.Background(), models.KindTemperature, time.Time{})
	require.Len(t, rows, 1)
	assert.Equal(t, "raspberry-pi-brewery", rows[0].DeviceID)

	rec = api.do(t, http.MethodPost, "/sensor/data", "", `{"type":"co2","value":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/sensor/data", "", `{"type":"ph"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDevicesWithoutPresence(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t)

	rec := api.do(t, http.MethodGet, "/devices", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"devices":[],"streaming":[]}`, rec.Body.String())
}

func TestRoutingEdges(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Not Found"}`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/mqtt/test", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"detail":"Method Not Allowed"}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/readings/stats", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"detail":"Method Not Allowed"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/readings/weight", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
