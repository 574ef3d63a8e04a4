package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/models"
)

// Constraint names checked when mapping unique violations.
const (
	usersEmailKey    = "users_email_key"
	usersUsernameKey = "users_username_key"
)

const createUsersTable = `
	CREATE TABLE IF NOT EXISTS users (
		id              BIGSERIAL PRIMARY KEY,
		email           VARCHAR(255) NOT NULL,
		username        VARCHAR(100) NOT NULL,
		hashed_password VARCHAR(255) NOT NULL,
		full_name       VARCHAR(255),
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT ` + usersEmailKey + ` UNIQUE (email),
		CONSTRAINT ` + usersUsernameKey + ` UNIQUE (username)
	)
`

// SchemaStatements returns the bootstrap DDL: the users table plus one table per reading
// kind with device_id and timestamp indexes. Every statement is idempotent.
func SchemaStatements() []string {
	stmts := []string{createUsersTable}
	for _, kind := range models.AllKinds {
		spec, _ := kind.Spec()
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id          BIGSERIAL PRIMARY KEY,
		device_id   VARCHAR(%d) NOT NULL,
		%s DOUBLE PRECISION NOT NULL,
		timestamp   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, spec.Table, models.MaxDeviceIDLength, spec.Field),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS ix_%s_device_id ON %s (device_id)`, spec.Table, spec.Table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS ix_%s_timestamp ON %s (timestamp DESC)`, spec.Table, spec.Table),
		)
	}
	return stmts
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range SchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return storageErr("ensure schema", err)
		}
	}
	return nil
}
