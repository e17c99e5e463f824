package overlay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/scribblemap/arcapture/internal/annotation"
)

// MarkerSet tracks the markers currently shown for the session's
// annotations, keyed by annotation id.
type MarkerSet struct {
	mu      sync.RWMutex
	order   []string
	handles map[string]MarkerHandle
	build   PayloadBuilder
}

// NewMarkerSet creates an empty MarkerSet.
func NewMarkerSet(build PayloadBuilder) *MarkerSet {
	return &MarkerSet{
		handles: make(map[string]MarkerHandle),
		build:   build,
	}
}

// Get retrieves the marker handle of an annotation.
func (m *MarkerSet) Get(annotationID string) (MarkerHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[annotationID]
	return h, ok
}

// Len returns the number of markers shown.
func (m *MarkerSet) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Handles returns the marker handles in annotation order.
func (m *MarkerSet) Handles() []MarkerHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MarkerHandle, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.handles[id])
	}
	return out
}

// Reconcile removes every marker it placed, then adds exactly one marker per
// annotation. Failures are collected; the set reflects what was placed.
func (m *MarkerSet) Reconcile(r Renderer, annotations []annotation.Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := m.removeAllLocked(r)
	for _, a := range annotations {
		h, err := r.AddMarker(a.Coordinate, m.build.Build(a))
		if err != nil {
			errs = append(errs, fmt.Errorf("adding marker for %s: %w", a.ID, err))
			continue
		}
		m.order = append(m.order, a.ID)
		m.handles[a.ID] = h
	}
	return errors.Join(errs...)
}

// Reset removes every marker from r and empties the set.
func (m *MarkerSet) Reset(r Renderer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(m.removeAllLocked(r)...)
}

func (m *MarkerSet) removeAllLocked(r Renderer) []error {
	var errs []error
	for _, id := range m.order {
		if err := r.RemoveMarker(m.handles[id]); err != nil && !errors.Is(err, ErrDisposed) {
			errs = append(errs, fmt.Errorf("removing marker for %s: %w", id, err))
		}
	}
	m.order = nil
	m.handles = make(map[string]MarkerHandle)
	return errs
}
