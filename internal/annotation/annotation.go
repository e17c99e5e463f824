// Package annotation holds the captured, geotagged drawings of a session.
package annotation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/geo"
)

// ErrEmptyImage is returned when an annotation carries no raster.
var ErrEmptyImage = errors.New("annotation image is empty")

// Annotation is an immutable geotagged drawing.
type Annotation struct {
	ID         string              `json:"id"`
	Coordinate geo.Coordinate      `json:"coordinate"`
	Image      drawing.RasterImage `json:"image"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// New validates its inputs and assigns a fresh id.
func New(coord geo.Coordinate, image drawing.RasterImage, createdAt time.Time) (Annotation, error) {
	if err := coord.Validate(); err != nil {
		return Annotation{}, err
	}
	if image == "" {
		return Annotation{}, ErrEmptyImage
	}
	return Annotation{
		ID:         uuid.NewString(),
		Coordinate: coord,
		Image:      image,
		CreatedAt:  createdAt,
	}, nil
}

// Store is an append-only, ordered collection of annotations. Snapshot
// returns a copy in capture order.
type Store interface {
	Append(a Annotation) error
	Get(id string) (Annotation, bool)
	Snapshot() []Annotation
	Len() int
	Clear() error
	Close() error
}

// Nearby returns the annotations of snapshot within radius meters of c, in
// capture order.
func Nearby(snapshot []Annotation, c geo.Coordinate, radiusMeters float64) []Annotation {
	out := make([]Annotation, 0)
	for _, a := range snapshot {
		if a.Coordinate.DistanceMeters(c) <= radiusMeters {
			out = append(out, a)
		}
	}
	return out
}
