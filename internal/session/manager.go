package session

import (
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Manager owns the live hubs, one per session.
type Manager struct {
	mu   sync.Mutex
	hubs map[string]*Hub
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewManager(rdb *redis.Client, log zerolog.Logger) *Manager {
	return &Manager{hubs: make(map[string]*Hub), rdb: rdb, log: log}
}

// Open starts a hub for a session going live. Reopening an already-live
// session returns the existing hub.
func (m *Manager) Open(sessionID, broadcasterID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.hubs[sessionID]; ok {
		return h
	}
	h := NewHub(sessionID, broadcasterID, m.rdb, m.log)
	m.hubs[sessionID] = h
	go h.Run()
	return h
}

func (m *Manager) Lookup(sessionID string) (*Hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hubs[sessionID]
	return h, ok
}

// Close tears the hub down when the broadcast ends and reports peak viewers.
func (m *Manager) Close(sessionID string) (int, bool) {
	m.mu.Lock()
	h, ok := m.hubs[sessionID]
	delete(m.hubs, sessionID)
	m.mu.Unlock()
	if !ok {
		return 0, false
	}
	return h.Stop(), true
}
