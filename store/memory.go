package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with process-local maps. It is the default
// driver: sessions are deliberately ephemeral and do not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*User    // username -> user
	sessions map[string]*Session // session id -> session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		sessions: make(map[string]*Session),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return ErrUserExists
	}
	u := *user
	m.users[user.Username] = &u
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, username string) (string, error) {
	id := uuid.New().String()
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &Session{
		ID:         id,
		Username:   username,
		CreatedAt:  now,
		LastActive: now,
		State:      make(map[string]any),
	}
	return id, nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	sess.LastActive = time.Now()
	return copySession(sess), nil
}

func (m *MemoryStore) UpdateSessionState(_ context.Context, id, key string, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	sess.State[key] = value
	sess.LastActive = time.Now()
	return true, nil
}

func (m *MemoryStore) GetSessionState(_ context.Context, id, key string) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, false, nil
	}
	sess.LastActive = time.Now()
	v, ok := sess.State[key]
	return v, ok, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *MemoryStore) SweepSessions(_ context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, sess := range m.sessions {
		if sess.LastActive.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// copySession returns a deep enough copy that callers cannot mutate the
// stored state bag without going through the store.
func copySession(s *Session) *Session {
	cp := *s
	cp.State = make(map[string]any, len(s.State))
	for k, v := range s.State {
		cp.State[k] = v
	}
	return &cp
}
