package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/models"
)

// Query window and limit bounds.
const (
	DefaultDays        = 7
	MinDays            = 1
	MaxDays            = 365
	DefaultLatestLimit = 10
	MaxLatestLimit     = 100
)

var (
	// ErrUnauthenticated is returned when a query is made without a resolved user.
	ErrUnauthenticated = errors.New("readings: authentication required")
	// ErrUnknownKind is returned for a reading kind that has no table.
	ErrUnknownKind = errors.New("readings: unknown kind")
	// ErrInvalidQuery is returned for an out of range days or limit parameter.
	ErrInvalidQuery = errors.New("readings: invalid query")
)

// ReadingReader is the storage contract used by queries.
type ReadingReader interface {
	ListSince(ctx context.Context, kind models.Kind, since time.Time) ([]models.Reading, error)
	ListLatest(ctx context.Context, kind models.Kind, limit int) ([]models.Reading, error)
	DeleteAll(ctx context.Context) (map[models.Kind]int64, error)
	Stats(ctx context.Context, kind models.Kind) (models.KindStats, error)
}

// ReadingsService answers authenticated read queries and the clear operation.
type ReadingsService struct {
	repo   ReadingReader
	logger *zap.Logger
	now    func() time.Time
}

// NewReadingsService builds ReadingsService.
func NewReadingsService(repo ReadingReader, logger *zap.Logger) *ReadingsService {
	return &ReadingsService{repo: repo, logger: logger, now: time.Now}
}

// List returns readings of kind recorded within the last days days, newest first.
func (s *ReadingsService) List(ctx context.Context, caller *models.User, kind models.Kind, days int) ([]models.Reading, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if _, ok := kind.Spec(); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if days < MinDays || days > MaxDays {
		return nil, fmt.Errorf("%w: days must be between %d and %d", ErrInvalidQuery, MinDays, MaxDays)
	}

	since := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	return s.repo.ListSince(ctx, kind, since)
}

// Latest returns up to limit most recent readings for every kind.
func (s *ReadingsService) Latest(ctx context.Context, caller *models.User, limit int) (map[models.Kind][]models.Reading, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if limit < 1 || limit > MaxLatestLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, MaxLatestLimit)
	}

	latest := make(map[models.Kind][]models.Reading, len(models.AllKinds))
	for _, kind := range models.AllKinds {
		readings, err := s.repo.ListLatest(ctx, kind, limit)
		if err != nil {
			return nil, err
		}
		latest[kind] = readings
	}
	return latest, nil
}

// Stats returns row counts and newest timestamps for every kind.
func (s *ReadingsService) Stats(ctx context.Context, caller *models.User) (map[models.Kind]models.KindStats, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}

	stats := make(map[models.Kind]models.KindStats, len(models.AllKinds))
	for _, kind := range models.AllKinds {
		st, err := s.repo.Stats(ctx, kind)
		if err != nil {
			return nil, err
		}
		stats[kind] = st
	}
	return stats, nil
}

// ClearAll deletes every reading. It is all or nothing.
func (s *ReadingsService) ClearAll(ctx context.Context, caller *models.User) (map[models.Kind]int64, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}

	deleted, err := s.repo.DeleteAll(ctx)
	if err != nil {
		s.logger.Error("failed to clear readings", zap.String("username", caller.Username), zap.Error(err))
		return nil, err
	}

	var total int64
	for _, n := range deleted {
		total += n
	}
	s.logger.Warn("all readings cleared", zap.String("username", caller.Username), zap.Int64("rows", total))
	return deleted, nil
}
