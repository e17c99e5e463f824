package overlay

import (
	"errors"
	"sync"

	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/search"
)

// Multi mirrors every call onto several renderers. The first renderer is
// the primary: its handles are the ones returned to callers, and its errors
// are the ones reported. Mirrors that fail are logged through OnMirrorError.
type Multi struct {
	primary Renderer
	mirrors []Renderer

	mu      sync.Mutex
	handles map[MarkerHandle][]MarkerHandle

	OnMirrorError func(op string, err error)
}

var _ Renderer = (*Multi)(nil)

// NewMulti creates a fan-out renderer.
func NewMulti(primary Renderer, mirrors ...Renderer) *Multi {
	return &Multi{
		primary: primary,
		mirrors: mirrors,
		handles: make(map[MarkerHandle][]MarkerHandle),
	}
}

func (m *Multi) mirrorErr(op string, err error) {
	if err != nil && m.OnMirrorError != nil {
		m.OnMirrorError(op, err)
	}
}

func (m *Multi) AddMarker(coord geo.Coordinate, payload Payload) (MarkerHandle, error) {
	h, err := m.primary.AddMarker(coord, payload)
	if err != nil {
		return "", err
	}
	mirrored := make([]MarkerHandle, len(m.mirrors))
	for i, r := range m.mirrors {
		mh, err := r.AddMarker(coord, payload)
		m.mirrorErr("add_marker", err)
		mirrored[i] = mh
	}
	m.mu.Lock()
	m.handles[h] = mirrored
	m.mu.Unlock()
	return h, nil
}

func (m *Multi) RemoveMarker(h MarkerHandle) error {
	m.mu.Lock()
	mirrored := m.handles[h]
	delete(m.handles, h)
	m.mu.Unlock()

	for i, r := range m.mirrors {
		if i < len(mirrored) && mirrored[i] != "" {
			m.mirrorErr("remove_marker", r.RemoveMarker(mirrored[i]))
		}
	}
	return m.primary.RemoveMarker(h)
}

func (m *Multi) SetHeatmapSource(points search.PointCollection) error {
	for _, r := range m.mirrors {
		m.mirrorErr("set_heatmap", r.SetHeatmapSource(points))
	}
	return m.primary.SetHeatmapSource(points)
}

func (m *Multi) ClearHeatmapSource() error {
	for _, r := range m.mirrors {
		m.mirrorErr("clear_heatmap", r.ClearHeatmapSource())
	}
	return m.primary.ClearHeatmapSource()
}

func (m *Multi) FlyTo(coord geo.Coordinate, zoom float64) error {
	for _, r := range m.mirrors {
		m.mirrorErr("fly_to", r.FlyTo(coord, zoom))
	}
	return m.primary.FlyTo(coord, zoom)
}

// Dispose disposes every renderer and joins their errors.
func (m *Multi) Dispose() error {
	errs := []error{m.primary.Dispose()}
	for _, r := range m.mirrors {
		errs = append(errs, r.Dispose())
	}
	m.mu.Lock()
	m.handles = make(map[MarkerHandle][]MarkerHandle)
	m.mu.Unlock()
	return errors.Join(errs...)
}
