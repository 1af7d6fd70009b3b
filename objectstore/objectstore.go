// Package objectstore abstracts the bucket holding raw input batches and
// the curated/quarantine outputs.
package objectstore

import (
	"context"
	"errors"
	"sync"
)

// ErrObjectNotFound is returned when the named object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore reads input objects and writes output payloads. Names are
// full object keys including any path prefix.
type ObjectStore interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte, contentType string) error
}

// InMemory is an in-memory ObjectStore for tests.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewInMemory creates an empty in-memory object store.
func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string][]byte)}
}

func (s *InMemory) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[name]
	if !ok {
		return nil, ErrObjectNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *InMemory) Put(_ context.Context, name string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[name] = stored
	return nil
}

// Names returns the keys of all stored objects.
func (s *InMemory) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	return names
}
