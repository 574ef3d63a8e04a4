package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/models"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/repository"
)

var errStoreDown = errors.New("store down")

type fakeReadingRepo struct {
	mu       sync.Mutex
	now      time.Time
	nextID   map[models.Kind]int64
	rows     map[models.Kind][]models.Reading
	inserts  int
	failOn   models.Kind
	failAll  bool
	lastList time.Time
}

func newFakeReadingRepo(now time.Time) *fakeReadingRepo {
	return &fakeReadingRepo{
		now:    now,
		nextID: make(map[models.Kind]int64),
		rows:   make(map[models.Kind][]models.Reading),
	}
}

func (f *fakeReadingRepo) Insert(_ context.Context, reading *models.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	return f.insertLocked(reading)
}

func (f *fakeReadingRepo) insertLocked(reading *models.Reading) error {
	if f.failAll || reading.Kind == f.failOn {
		return errStoreDown
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = f.now
	}
	f.nextID[reading.Kind]++
	reading.ID = f.nextID[reading.Kind]
	f.rows[reading.Kind] = append(f.rows[reading.Kind], *reading)
	return nil
}

func (f *fakeReadingRepo) InsertAll(_ context.Context, readings []*models.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++

	snapshot := make(map[models.Kind][]models.Reading, len(f.rows))
	ids := make(map[models.Kind]int64, len(f.nextID))
	for k, v := range f.rows {
		snapshot[k] = append([]models.Reading(nil), v...)
	}
	for k, v := range f.nextID {
		ids[k] = v
	}
	for _, reading := range readings {
		if err := f.insertLocked(reading); err != nil {
			f.rows, f.nextID = snapshot, ids
			for _, r := range readings {
				r.ID = 0
			}
			return err
		}
	}
	return nil
}

func (f *fakeReadingRepo) ListSince(_ context.Context, kind models.Kind, since time.Time) ([]models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStoreDown
	}
	f.lastList = since
	out := make([]models.Reading, 0)
	for _, r := range f.rows[kind] {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (f *fakeReadingRepo) ListLatest(_ context.Context, kind models.Kind, limit int) ([]models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStoreDown
	}
	out := append([]models.Reading{}, f.rows[kind]...)
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReadingRepo) DeleteAll(context.Context) (map[models.Kind]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStoreDown
	}
	deleted := make(map[models.Kind]int64, len(models.AllKinds))
	for _, kind := range models.AllKinds {
		deleted[kind] = int64(len(f.rows[kind]))
	}
	f.rows = make(map[models.Kind][]models.Reading)
	return deleted, nil
}

func (f *fakeReadingRepo) Stats(_ context.Context, kind models.Kind) (models.KindStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return models.KindStats{}, errStoreDown
	}
	st := models.KindStats{Count: int64(len(f.rows[kind]))}
	for _, r := range f.rows[kind] {
		ts := r.Timestamp
		if st.LastTimestamp == nil || ts.After(*st.LastTimestamp) {
			st.LastTimestamp = &ts
		}
	}
	return st, nil
}

func (f *fakeReadingRepo) count(kind models.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[kind])
}

func (f *fakeReadingRepo) add(kind models.Kind, deviceID string, value float64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID[kind]++
	f.rows[kind] = append(f.rows[kind], models.Reading{
		ID: f.nextID[kind], Kind: kind, DeviceID: deviceID, Value: value, Timestamp: at,
	})
}

func sortNewestFirst(readings []models.Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		if readings[i].Timestamp.Equal(readings[j].Timestamp) {
			return readings[i].ID > readings[j].ID
		}
		return readings[i].Timestamp.After(readings[j].Timestamp)
	})
}

type touch struct {
	deviceID string
	kind     string
}

type fakePresence struct {
	touches []touch
	err     error
}

func (f *fakePresence) Touch(_ context.Context, deviceID, sensorType string, _ time.Time) error {
	f.touches = append(f.touches, touch{deviceID: deviceID, kind: sensorType})
	return f.err
}

type fakeUserRepo struct {
	users     []*models.User
	createErr error
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	user.ID = int64(len(f.users) + 1)
	user.IsActive = true
	user.CreatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stored := *user
	f.users = append(f.users, &stored)
	return nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// plainHasher keeps tests fast; bcrypt itself is covered in the password package.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }

func (plainHasher) Compare(hash, p string) error {
	if hash != "hashed:"+p {
		return errors.New("mismatch")
	}
	return nil
}
