package app

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	muxprom "gitlab.com/msvechla/mux-prometheus/pkg/middleware"
	"go.uber.org/zap"

	libmetrics "github.com/FilipKaczor/iot-project-backend/backend/libs/metrics"
	libredis "github.com/FilipKaczor/iot-project-backend/backend/libs/redis"
	appconfig "github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/config"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/db"
	httpserver "github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/http"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/http/handlers"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/http/middleware"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/password"
	redisstore "github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/redis"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/repository"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/service"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/ws"
)

// App wires dependencies for the brewery service.
type App struct {
	server  *httpserver.Server
	manager *ws.Manager
	db      *sql.DB
	redis   *goredis.Client
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// Deps are the externally created resources App is built from.
type Deps struct {
	DB *sql.DB
	// Redis is optional; without it device presence is not recorded.
	Redis    *goredis.Client
	Registry *prometheus.Registry
}

// New builds the application graph, connecting to Postgres and, when configured, Redis.
func New(cfg *appconfig.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(cfg, logger)
	if err != nil {
		return nil, err
	}

	var redisClient *goredis.Client
	if cfg.RedisEnabled() {
		redisClient, err = libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
	} else {
		logger.Info("redis not configured, device presence disabled")
	}

	return NewWithDeps(cfg, Deps{DB: sqlDB, Redis: redisClient, Registry: libmetrics.NewRegistry()}, logger), nil
}

// NewWithDeps builds the application graph around already opened resources.
func NewWithDeps(cfg *appconfig.Config, deps Deps, logger *zap.Logger) *App {
	baseCtx, cancel := context.WithCancel(context.Background())

	readingRepo := repository.NewReadingRepository(deps.DB)
	userRepo := repository.NewUserRepository(deps.DB)

	var (
		presence     service.PresenceRecorder
		deviceLister handlers.DeviceLister
		cache        handlers.Pinger
	)
	if deps.Redis != nil {
		store := redisstore.NewStore(deps.Redis, cfg.DeviceTTL())
		presence = store
		deviceLister = store
		cache = store
	}

	hasher := password.NewBcryptHasher(cfg.Password.BcryptCost)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret, cfg.JWTExpiration())
	authSvc := service.NewAuthService(userRepo, hasher, tokenSvc, logger)
	ingestSvc := service.NewIngestService(
		readingRepo,
		presence,
		service.NewIngestMetrics(deps.Registry),
		service.IngestConfig{
			FallbackDeviceID: cfg.Ingest.FallbackDeviceID,
			GenericDeviceID:  cfg.Ingest.GenericDeviceID,
		},
		logger,
	)
	readingsSvc := service.NewReadingsService(readingRepo, logger)

	manager := ws.NewManager(cfg.PingInterval(), logger)
	wsServer := ws.NewServer(baseCtx, manager, ingestSvc, cfg.WSWriteTimeout(), logger)

	instrumentation := muxprom.NewCustomInstrumentation(true, "brewery", "http", prometheus.DefBuckets, nil, deps.Registry)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Root:            handlers.NewRootHandler(cfg.Service.Name),
		Health:          handlers.NewHealthHandler(cfg.Service.Name, readingRepo, cache, logger),
		Register:        handlers.NewRegisterHandler(authSvc, logger),
		Login:           handlers.NewLoginHandler(authSvc, logger),
		UserInfo:        handlers.NewUserInfoHandler(),
		Devices:         handlers.NewDevicesHandler(deviceLister, manager, logger),
		Stream:          wsServer.HandleWS,
		Metrics:         libmetrics.Handler(deps.Registry),
		Readings:        handlers.NewReadingsHandlers(readingsSvc, logger),
		Ingest:          handlers.NewIngestHandlers(ingestSvc, logger),
		AuthMiddleware:  middleware.AuthMiddleware(authSvc, logger),
		Instrumentation: instrumentation.Middleware,
	})

	server := httpserver.NewServer(
		cfg.HTTPAddress(),
		router,
		httpserver.Timeouts{
			Read:     cfg.ReadTimeout(),
			Write:    cfg.WriteTimeout(),
			Shutdown: cfg.ShutdownTimeout(),
		},
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		httpserver.CORS(cfg.CORS.AllowedOrigins),
	)

	return &App{
		server:  server,
		manager: manager,
		db:      deps.DB,
		redis:   deps.Redis,
		cancel:  cancel,
		logger:  logger,
	}
}

// Handler exposes the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run starts the stream keepalive loop and serves HTTP traffic until context cancellation.
func (a *App) Run(ctx context.Context) error {
	go a.manager.Start(ctx)
	return a.server.Run(ctx)
}

// Close releases acquired resources.
func (a *App) Close() {
	a.cancel()
	a.manager.CloseAll()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
