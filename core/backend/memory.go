package backend

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and development. Values are
// copied on the way in and out so callers cannot alias internal state.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.live(key, time.Now())
	if entry == nil {
		return nil, ErrNotFound
	}
	return cloneBytes(entry.value), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = newEntry(value, ttl)
	return nil
}

func (m *Memory) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live(key, time.Now()) != nil {
		return false, nil
	}
	m.entries[key] = newEntry(value, ttl)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *Memory) Touch(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.live(key, time.Now())
	if entry == nil {
		return nil
	}
	entry.expiresAt = expiry(ttl)
	return nil
}

func (m *Memory) GetAndTouch(_ context.Context, key string, ttl time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.live(key, time.Now())
	if entry == nil {
		return nil, ErrNotFound
	}
	entry.expiresAt = expiry(ttl)
	return cloneBytes(entry.value), nil
}

// TTL reports the remaining lifetime of a key; zero means no expiry set,
// ok is false for absent keys. Test helper, not part of Store.
func (m *Memory) TTL(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.live(key, time.Now())
	if entry == nil {
		return 0, false
	}
	if entry.expiresAt.IsZero() {
		return 0, true
	}
	return time.Until(entry.expiresAt), true
}

// live returns the entry for key, dropping it first if it has expired.
// Callers must hold mu.
func (m *Memory) live(key string, now time.Time) *memoryEntry {
	entry, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return entry
}

func newEntry(value []byte, ttl time.Duration) *memoryEntry {
	return &memoryEntry{value: cloneBytes(value), expiresAt: expiry(ttl)}
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
