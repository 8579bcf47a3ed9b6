package cache

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/tollgate/idempotency"
)

var _ idempotency.Cache = (*Memory)(nil)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// minSweepSize is the entry count at which Set first sweeps expired entries.
const minSweepSize = 1024

// Memory is an in-process cache with per-entry expiry. Expired entries are
// dropped when read and swept from Set once the map doubles since the last
// sweep.
type Memory struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	now       func() time.Time
	sweepSize int
}

func NewMemory() *Memory {
	return &Memory{
		entries:   make(map[string]memoryEntry),
		now:       time.Now,
		sweepSize: minSweepSize,
	}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// WithClock replaces the time source used for expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, namespace, key string) ([]byte, error) {
	k := namespace + ":" + key

	m.mu.RLock()
	e, ok := m.entries[k]
	m.mu.RUnlock()

	if !ok {
		return nil, idempotency.ErrCacheMiss
	}
	if now := m.now(); e.expired(now) {
		m.mu.Lock()
		if cur, ok := m.entries[k]; ok && cur.expired(now) {
			delete(m.entries, k)
		}
		m.mu.Unlock()
		return nil, idempotency.ErrCacheMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[namespace+":"+key] = e
	if len(m.entries) >= m.sweepSize {
		m.sweep()
	}
	return nil
}

// sweep drops expired entries. Callers hold the write lock.
func (m *Memory) sweep() {
	now := m.now()
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
	m.sweepSize = max(2*len(m.entries), minSweepSize)
}

// Len returns the number of stored entries, including expired ones not yet
// dropped.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
