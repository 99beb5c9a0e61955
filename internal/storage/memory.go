package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// MemoryStore keeps objects in a map. Used in tests and when the server
// runs without an S3 backend configured.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
}

var _ ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		baseURL: "memory://assets",
	}
}

func (s *MemoryStore) Upload(_ context.Context, data []byte, filename, contentType, folder string) (*UploadResult, error) {
	_ = contentType
	key := strings.Trim(folder, "/") + "/" + filename
	s.mu.Lock()
	s.objects[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return &UploadResult{URL: s.baseURL + "/" + key, Key: key}, nil
}

func (s *MemoryStore) Fetch(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("storage: object not found: " + key)
	}
	return append([]byte(nil), data...), nil
}

// Object returns the stored bytes for key, or nil.
func (s *MemoryStore) Object(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key]
}

// Len reports how many objects have been stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
