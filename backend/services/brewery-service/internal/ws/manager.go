package ws

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager tracks device connections, one per device id.
type Manager struct {
	mu           sync.RWMutex
	connections  map[string]*Connection
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewManager builds connection manager.
func NewManager(pingInterval time.Duration, logger *zap.Logger) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Manager{
		connections:  make(map[string]*Connection),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// PongWait is how long a connection may stay silent before it is considered dead.
// It spans two ping intervals.
func (m *Manager) PongWait() time.Duration {
	return 2 * m.pingInterval
}

// Add registers new connection. An older connection for the same device is closed.
func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	previous := m.connections[conn.DeviceID()]
	m.connections[conn.DeviceID()] = conn
	m.mu.Unlock()

	if previous != nil && previous != conn {
		m.logger.Info("replacing device connection", zap.String("device_id", conn.DeviceID()))
		previous.Close()
	}
}

// Remove forgets conn if it is still the registered connection for its device.
func (m *Manager) Remove(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connections[conn.DeviceID()] == conn {
		delete(m.connections, conn.DeviceID())
	}
}

// Count returns the number of connected devices.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// DeviceIDs returns the ids of connected devices.
func (m *Manager) DeviceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start pings every connection on an interval and drops those that fail. It returns when
// ctx is done, closing all remaining connections.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case <-ticker.C:
			for _, conn := range m.snapshot() {
				if err := conn.Ping(); err != nil {
					m.logger.Info("dropping dead device connection", zap.String("device_id", conn.DeviceID()), zap.Error(err))
					conn.Close()
				}
			}
		}
	}
}

// CloseAll closes every tracked connection.
func (m *Manager) CloseAll() {
	for _, conn := range m.snapshot() {
		conn.Close()
	}
}

func (m *Manager) snapshot() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	return conns
}
