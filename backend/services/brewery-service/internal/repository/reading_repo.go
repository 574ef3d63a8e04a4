package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/models"
)

// ReadingRepository persists readings, one table per kind.
type ReadingRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewReadingRepository returns repository.
func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db, now: time.Now}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Insert stores a reading and fills in its id. A zero timestamp is replaced by server time.
func (r *ReadingRepository) Insert(ctx context.Context, reading *models.Reading) error {
	return r.insert(ctx, r.db, reading)
}

// InsertAll stores readings atomically: either every row is committed or none is.
func (r *ReadingRepository) InsertAll(ctx context.Context, readings []*models.Reading) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			for _, reading := range readings {
				reading.ID = 0
			}
		}
	}()

	for _, reading := range readings {
		if err = r.insert(ctx, tx, reading); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func (r *ReadingRepository) insert(ctx context.Context, q queryRower, reading *models.Reading) error {
	spec, ok := reading.Kind.Spec()
	if !ok {
		return storageErr("insert", fmt.Errorf("unknown kind %q", reading.Kind))
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = r.now().UTC()
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (device_id, %s, timestamp) VALUES ($1, $2, $3) RETURNING id`,
		spec.Table, spec.Field,
	)
	if err := q.QueryRowContext(ctx, query, reading.DeviceID, reading.Value, reading.Timestamp).Scan(&reading.ID); err != nil {
		return storageErr("insert "+spec.Table, err)
	}
	return nil
}

// ListSince returns readings of kind with timestamp >= since, newest first.
func (r *ReadingRepository) ListSince(ctx context.Context, kind models.Kind, since time.Time) ([]models.Reading, error) {
	spec, ok := kind.Spec()
	if !ok {
		return nil, storageErr("list", fmt.Errorf("unknown kind %q", kind))
	}
	query := fmt.Sprintf(
		`SELECT id, device_id, %s, timestamp FROM %s WHERE timestamp >= $1 ORDER BY timestamp DESC, id DESC`,
		spec.Field, spec.Table,
	)
	return r.list(ctx, kind, query, since.UTC())
}

// ListLatest returns up to limit most recent readings of kind.
func (r *ReadingRepository) ListLatest(ctx context.Context, kind models.Kind, limit int) ([]models.Reading, error) {
	spec, ok := kind.Spec()
	if !ok {
		return nil, storageErr("list", fmt.Errorf("unknown kind %q", kind))
	}
	query := fmt.Sprintf(
		`SELECT id, device_id, %s, timestamp FROM %s ORDER BY timestamp DESC, id DESC LIMIT $1`,
		spec.Field, spec.Table,
	)
	return r.list(ctx, kind, query, limit)
}

func (r *ReadingRepository) list(ctx context.Context, kind models.Kind, query string, args ...interface{}) ([]models.Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query "+string(kind), err)
	}
	defer rows.Close()

	readings := make([]models.Reading, 0)
	for rows.Next() {
		reading := models.Reading{Kind: kind}
		if err := rows.Scan(&reading.ID, &reading.DeviceID, &reading.Value, &reading.Timestamp); err != nil {
			return nil, storageErr("scan "+string(kind), err)
		}
		reading.Timestamp = reading.Timestamp.UTC()
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query "+string(kind), err)
	}
	return readings, nil
}

// DeleteAll empties every reading table in one transaction and returns deleted row counts.
func (r *ReadingRepository) DeleteAll(ctx context.Context) (map[models.Kind]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin", err)
	}
	defer tx.Rollback()

	deleted := make(map[models.Kind]int64, len(models.AllKinds))
	for _, kind := range models.AllKinds {
		spec, _ := kind.Spec()
		result, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, spec.Table))
		if err != nil {
			return nil, storageErr("delete "+spec.Table, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, storageErr("delete "+spec.Table, err)
		}
		deleted[kind] = affected
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit", err)
	}
	return deleted, nil
}

// Stats returns row count and newest timestamp for kind.
func (r *ReadingRepository) Stats(ctx context.Context, kind models.Kind) (models.KindStats, error) {
	spec, ok := kind.Spec()
	if !ok {
		return models.KindStats{}, storageErr("stats", fmt.Errorf("unknown kind %q", kind))
	}

	var (
		stats models.KindStats
		last  sql.NullTime
	)
	query := fmt.Sprintf(`SELECT COUNT(*), MAX(timestamp) FROM %s`, spec.Table)
	if err := r.db.QueryRowContext(ctx, query).Scan(&stats.Count, &last); err != nil {
		return models.KindStats{}, storageErr("stats "+spec.Table, err)
	}
	if last.Valid {
		ts := last.Time.UTC()
		stats.LastTimestamp = &ts
	}
	return stats, nil
}

// Ping checks the database connection.
func (r *ReadingRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}
