// Package persist writes items to durable storage with an atomic
// temp-file-then-rename protocol and tracks what has already been ingested.
package persist

import "sync"

// ProcessedSet provides thread-safe tracking of ingested item keys, so the
// same item is never fetched twice in one run even when legislatures overlap
// or fetches run concurrently.
type ProcessedSet struct {
	seen sync.Map
}

// NewProcessedSet returns an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{}
}

// Contains reports whether key was already marked.
func (s *ProcessedSet) Contains(key string) bool {
	if key == "" {
		return false
	}
	_, ok := s.seen.Load(key)
	return ok
}

// Mark records the key.
func (s *ProcessedSet) Mark(key string) {
	if key == "" {
		return
	}
	s.seen.Store(key, struct{}{})
}

// Len returns the number of marked keys.
func (s *ProcessedSet) Len() int {
	n := 0
	s.seen.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
