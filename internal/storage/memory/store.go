// Package memory stores objects in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/openparl/stenosync/internal/storage"
)

// Store holds objects in a map and returns pseudo URIs.
type Store struct {
	mu          sync.RWMutex
	data        map[string][]byte
	contentType map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		data:        make(map[string][]byte),
		contentType: make(map[string]string),
	}
}

// Put stores a copy of data under key.
func (s *Store) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	s.contentType[key] = contentType
	return s.URI(key), nil
}

// Get returns a copy of the stored object.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Exists reports key presence.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

// Copy duplicates srcKey under dstKey.
func (s *Store) Copy(_ context.Context, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[srcKey]
	if !ok {
		return storage.ErrNotFound
	}
	s.data[dstKey] = append([]byte(nil), data...)
	s.contentType[dstKey] = s.contentType[srcKey]
	return nil
}

// Delete removes the object.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, key)
	delete(s.contentType, key)
	return nil
}

// List returns sorted keys under prefix.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// URI returns a memory:// URI for a key.
func (s *Store) URI(key string) string {
	return fmt.Sprintf("memory://%s", key)
}

// ContentType exposes the stored content type for assertions in tests.
func (s *Store) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contentType[key]
}
