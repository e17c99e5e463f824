package annotation

import "sync"

// MemoryStore keeps annotations in a slice.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Annotation
	index map[string]int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make([]Annotation, 0),
		index: make(map[string]int),
	}
}

// Append adds a to the end of the store.
func (s *MemoryStore) Append(a Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[a.ID] = len(s.items)
	s.items = append(s.items, a)
	return nil
}

// Get looks up an annotation by id.
func (s *MemoryStore) Get(id string) (Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Annotation{}, false
	}
	return s.items[i], true
}

// Snapshot returns a copy of every annotation in capture order.
func (s *MemoryStore) Snapshot() []Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Annotation, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of annotations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear removes every annotation.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]Annotation, 0)
	s.index = make(map[string]int)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
