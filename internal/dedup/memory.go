package dedup

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local TTL set. Expired keys are swept lazily.
type Memory struct {
	mu        sync.Mutex
	seen      map[string]time.Time // key -> expiry
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		seen:      make(map[string]time.Time),
		ttl:       ttl,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= m.ttl {
		for k, exp := range m.seen {
			if !exp.After(now) {
				delete(m.seen, k)
			}
		}
		m.lastSweep = now
	}

	if exp, ok := m.seen[key]; ok && exp.After(now) {
		return true, nil
	}
	m.seen[key] = now.Add(m.ttl)
	return false, nil
}

func (m *Memory) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func (m *Memory) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
