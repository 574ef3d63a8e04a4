package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	libdb "github.com/FilipKaczor/iot-project-backend/backend/libs/db"
	appconfig "github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/config"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/repository"
)

const migrateTimeout = 30 * time.Second

// NewPostgres connects to Postgres using shared library helper and, when enabled,
// bootstraps the schema.
func NewPostgres(cfg *appconfig.Config, logger *zap.Logger) (*sql.DB, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN, libdb.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnLifetime: cfg.ConnLifetime(),
	})
	if err != nil {
		return nil, err
	}

	if !cfg.Database.AutoMigrate {
		return sqlDB, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	if err := repository.EnsureSchema(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	logger.Info("database schema ensured", zap.Int("statements", len(repository.SchemaStatements())))
	return sqlDB, nil
}
