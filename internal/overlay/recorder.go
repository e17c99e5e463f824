package overlay

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/search"
)

// Marker is a placed marker as seen by the Recorder.
type Marker struct {
	Handle     MarkerHandle   `json:"handle"`
	Coordinate geo.Coordinate `json:"coordinate"`
	Payload    Payload        `json:"payload"`
	seq        uint64
}

// Camera is the current map viewpoint.
type Camera struct {
	Center geo.Coordinate `json:"center"`
	Zoom   float64        `json:"zoom"`
	// MercatorX/Y is Center projected to EPSG:3857.
	MercatorX float64 `json:"mercatorX"`
	MercatorY float64 `json:"mercatorY"`
}

// View is a point-in-time copy of the Recorder state.
type View struct {
	Markers  []Marker               `json:"markers"`
	Heatmap  search.PointCollection `json:"heatmap"`
	Camera   *Camera                `json:"camera,omitempty"`
	Disposed bool                   `json:"disposed"`
}

// Recorder is an in-process Renderer that keeps the map state it has been
// told to show. It backs the HTTP overlay view and tests.
type Recorder struct {
	mu       sync.RWMutex
	markers  map[MarkerHandle]Marker
	heatmap  search.PointCollection
	camera   *Camera
	disposed bool
	nextID   atomic.Uint64
}

var _ Renderer = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		markers: make(map[MarkerHandle]Marker),
		heatmap: search.PointCollection{Points: []search.Point{}},
	}
}

func (r *Recorder) AddMarker(coord geo.Coordinate, payload Payload) (MarkerHandle, error) {
	if err := coord.Validate(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return "", ErrDisposed
	}
	seq := r.nextID.Add(1)
	h := MarkerHandle(fmt.Sprintf("marker-%d", seq))
	r.markers[h] = Marker{Handle: h, Coordinate: coord, Payload: payload, seq: seq}
	return h, nil
}

func (r *Recorder) RemoveMarker(h MarkerHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrDisposed
	}
	if _, ok := r.markers[h]; !ok {
		return fmt.Errorf("unknown marker %q", h)
	}
	delete(r.markers, h)
	return nil
}

func (r *Recorder) SetHeatmapSource(points search.PointCollection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrDisposed
	}
	cp := make([]search.Point, len(points.Points))
	copy(cp, points.Points)
	r.heatmap = search.PointCollection{Points: cp}
	return nil
}

func (r *Recorder) ClearHeatmapSource() error {
	return r.SetHeatmapSource(search.PointCollection{})
}

func (r *Recorder) FlyTo(coord geo.Coordinate, zoom float64) error {
	if err := coord.Validate(); err != nil {
		return err
	}
	x, y := coord.WebMercator()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrDisposed
	}
	r.camera = &Camera{Center: coord, Zoom: zoom, MercatorX: x, MercatorY: y}
	return nil
}

// Dispose drops every marker and the heatmap. Further calls fail with
// ErrDisposed; a second Dispose is a no-op.
func (r *Recorder) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers = make(map[MarkerHandle]Marker)
	r.heatmap = search.PointCollection{Points: []search.Point{}}
	r.disposed = true
	return nil
}

// View returns the current state, markers in placement order.
func (r *Recorder) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v := View{
		Markers:  make([]Marker, 0, len(r.markers)),
		Heatmap:  search.PointCollection{Points: append([]search.Point{}, r.heatmap.Points...)},
		Disposed: r.disposed,
	}
	for _, m := range r.markers {
		v.Markers = append(v.Markers, m)
	}
	sort.Slice(v.Markers, func(i, j int) bool { return v.Markers[i].seq < v.Markers[j].seq })
	if r.camera != nil {
		cam := *r.camera
		v.Camera = &cam
	}
	return v
}

// MarkerCount returns the number of markers shown.
func (r *Recorder) MarkerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markers)
}

// MarkersGeoJSON encodes the markers as a GeoJSON FeatureCollection.
func (v View) MarkersGeoJSON() ([]byte, error) {
	fc := make(geom.GeoJSONFeatureCollection, 0, len(v.Markers))
	for _, m := range v.Markers {
		pt, err := m.Coordinate.Point()
		if err != nil {
			return nil, fmt.Errorf("marker %s: %w", m.Handle, err)
		}
		fc = append(fc, geom.GeoJSONFeature{
			ID:       string(m.Handle),
			Geometry: pt.AsGeometry(),
			Properties: map[string]interface{}{
				"title":        m.Payload.Title,
				"annotationId": m.Payload.AnnotationID,
			},
		})
	}
	return json.Marshal(fc)
}
