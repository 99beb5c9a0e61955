package idempotency

import (
	"context"
	"sync"
	"time"
)

const defaultTTL = 10 * time.Minute

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore keeps idempotency entries in process memory with a TTL and
// lazy cleanup. Single-process deployments only; use RedisStore when more
// than one API process shares traffic.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	cp := e.entry
	return &cp, nil
}

func (s *MemoryStore) SetPending(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()

	if _, exists := s.entries[key]; exists {
		return ErrDuplicate
	}
	now := s.now()
	s.entries[key] = &memoryEntry{
		entry:     Entry{Status: StatusPending, CreatedAt: now},
		expiresAt: now.Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) SetSuccess(_ context.Context, key string, response []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok {
		e = &memoryEntry{entry: Entry{CreatedAt: now}}
		s.entries[key] = e
	}
	e.entry.Status = StatusSuccess
	e.entry.Response = append([]byte(nil), response...)
	e.expiresAt = now.Add(s.ttl)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// cleanupLocked removes expired entries. Must be called with the mutex held.
func (s *MemoryStore) cleanupLocked() {
	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
