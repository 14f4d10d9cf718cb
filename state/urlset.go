// Package state tracks the URLs already processed across runs.
package state

import "sync"

// URLSet is a set of URLs safe for concurrent use. It remembers which values
// were added after it was loaded so they can be persisted separately.
type URLSet struct {
	mu    sync.RWMutex
	seen  map[string]struct{}
	added []string
}

// NewURLSet creates a set holding the given previously stored values.
func NewURLSet(values ...string) *URLSet {
	s := &URLSet{seen: make(map[string]struct{}, len(values))}
	for _, v := range values {
		if v != "" {
			s.seen[v] = struct{}{}
		}
	}
	return s
}

// Contains reports whether v is in the set.
func (s *URLSet) Contains(v string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[v]
	return ok
}

// Add inserts v and reports whether it was new. Empty values are ignored.
func (s *URLSet) Add(v string) bool {
	if v == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	s.added = append(s.added, v)
	return true
}

// Added returns the values added since the set was created, in order.
func (s *URLSet) Added() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.added...)
}

// Len returns the number of values in the set.
func (s *URLSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
