package otp

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	hash      string
	expiresAt time.Time
}

// MemoryStore is used when REDIS_ADDR is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry), now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, email, codeHash string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[normalize(email)] = entry{hash: codeHash, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, email string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := normalize(email)
	e, ok := m.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return "", ErrNotFound
	}
	return e.hash, nil
}

func (m *MemoryStore) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, normalize(email))
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
