package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "brewery:devices:"

// DefaultTTL is how long a device stays listed after its last reading.
const DefaultTTL = 24 * time.Hour

// Device is the last-seen record of a sensor device.
type Device struct {
	DeviceID   string    `json:"device_id"`
	LastType   string    `json:"last_type"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Store keeps device presence in redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(deviceID string) string {
	return fmt.Sprintf("%s%s", keyPrefix, deviceID)
}

// Touch records that deviceID just sent a reading of sensorType.
func (s *Store) Touch(ctx context.Context, deviceID, sensorType string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	data, err := json.Marshal(Device{DeviceID: deviceID, LastType: sensorType, LastSeenAt: at.UTC()})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(deviceID), data, s.ttl).Err()
}

// Get returns one device record.
func (s *Store) Get(ctx context.Context, deviceID string) (*Device, error) {
	result, err := s.client.Get(ctx, s.key(deviceID)).Result()
	if err != nil {
		return nil, err
	}
	var device Device
	if err := json.Unmarshal([]byte(result), &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// List returns every device seen within the TTL, sorted by id.
func (s *Store) List(ctx context.Context) ([]Device, error) {
	devices := make([]Device, 0)
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		deviceID := strings.TrimPrefix(iter.Val(), keyPrefix)
		device, err := s.Get(ctx, deviceID)
		if err != nil {
			// expired between SCAN and GET
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		devices = append(devices, *device)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].DeviceID < devices[j].DeviceID })
	return devices, nil
}

// Ping checks the redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
