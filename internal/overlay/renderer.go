// Package overlay drives the map surface: annotation markers, the search
// heatmap layer, and camera moves.
package overlay

import (
	"errors"
	"time"

	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/search"
)

// PopupTitle heads every annotation marker popup.
const PopupTitle = "AR Drawing"

// ErrDisposed is returned by renderers after Dispose.
var ErrDisposed = errors.New("overlay renderer disposed")

// MarkerHandle identifies a marker owned by a renderer.
type MarkerHandle string

// Payload is the popup content attached to a marker.
type Payload struct {
	Title        string              `json:"title"`
	AnnotationID string              `json:"annotationId"`
	Image        drawing.RasterImage `json:"image"`
	Thumbnail    drawing.RasterImage `json:"thumbnail,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// Renderer is the map surface the controller draws on.
type Renderer interface {
	AddMarker(coord geo.Coordinate, payload Payload) (MarkerHandle, error)
	RemoveMarker(h MarkerHandle) error
	// SetHeatmapSource replaces the heatmap data wholesale.
	SetHeatmapSource(points search.PointCollection) error
	ClearHeatmapSource() error
	FlyTo(coord geo.Coordinate, zoom float64) error
	Dispose() error
}
