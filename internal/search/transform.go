// Package search turns backend search hits into heatmap points.
package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/scribblemap/arcapture/internal/geo"
)

// DefaultWeight is assigned to every point; the backend's ranking signal is
// not exposed to the map layer.
const DefaultWeight = 1.0

// ErrInvalidHit marks a hit that was dropped from the output.
var ErrInvalidHit = errors.New("invalid search hit")

// HitCoordinate accepts both {lat,lng} and {latitude,longitude} shapes, with
// numbers or decimal strings.
type HitCoordinate struct {
	Lat       json.RawMessage `json:"lat,omitempty"`
	Lng       json.RawMessage `json:"lng,omitempty"`
	Latitude  json.RawMessage `json:"latitude,omitempty"`
	Longitude json.RawMessage `json:"longitude,omitempty"`
}

// Hit is one backend search result.
type Hit struct {
	ID          string          `json:"id"`
	ScribbleID  string          `json:"scribbleId,omitempty"`
	Coordinate  *HitCoordinate  `json:"coordinate,omitempty"`
	Coordinates *HitCoordinate  `json:"coordinates,omitempty"`
	CreatedAt   json.RawMessage `json:"createdAt"`
	Text        string          `json:"text,omitempty"`
	ImageURL    string          `json:"imageUrl,omitempty"`
}

// Point is one heatmap sample. It lives for a single heatmap refresh.
type Point struct {
	ID         string         `json:"id"`
	Coordinate geo.Coordinate `json:"coordinate"`
	Weight     float64        `json:"weight"`
	ObservedAt time.Time      `json:"observedAt"`
}

// Epoch returns ObservedAt in Unix milliseconds, the unit the map layer
// filters on.
func (p Point) Epoch() int64 {
	return p.ObservedAt.UnixMilli()
}

// PointCollection replaces the heatmap source wholesale.
type PointCollection struct {
	Points []Point `json:"points"`
}

// Len returns the number of points.
func (c PointCollection) Len() int { return len(c.Points) }

// Empty reports whether the collection has no points.
func (c PointCollection) Empty() bool { return len(c.Points) == 0 }

// Features returns the collection as GeoJSON point features.
func (c PointCollection) Features() (geom.GeoJSONFeatureCollection, error) {
	fc := make(geom.GeoJSONFeatureCollection, 0, len(c.Points))
	for _, p := range c.Points {
		pt, err := p.Coordinate.Point()
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", p.ID, err)
		}
		fc = append(fc, geom.GeoJSONFeature{
			ID:       p.ID,
			Geometry: pt.AsGeometry(),
			Properties: map[string]interface{}{
				"weight":    p.Weight,
				"timestamp": p.Epoch(),
			},
		})
	}
	return fc, nil
}

// MarshalGeoJSON encodes the collection as a GeoJSON FeatureCollection.
func (c PointCollection) MarshalGeoJSON() ([]byte, error) {
	fc, err := c.Features()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fc)
}

// Skipped records why a hit was dropped.
type Skipped struct {
	ID  string
	Err error
}

// Transform converts hits into a point collection with uniform weight.
// Hits with a malformed coordinate or timestamp are skipped and reported;
// they never abort the batch. The returned collection is never nil.
func Transform(hits []Hit, weight float64) (PointCollection, []Skipped) {
	if weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		weight = DefaultWeight
	}

	out := PointCollection{Points: make([]Point, 0, len(hits))}
	var skipped []Skipped

	for _, h := range hits {
		p, err := transformHit(h, weight)
		if err != nil {
			skipped = append(skipped, Skipped{ID: h.identity(), Err: err})
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out, skipped
}

func (h Hit) identity() string {
	if h.ID != "" {
		return h.ID
	}
	return h.ScribbleID
}

func transformHit(h Hit, weight float64) (Point, error) {
	id := h.identity()
	if id == "" {
		return Point{}, fmt.Errorf("%w: missing id", ErrInvalidHit)
	}

	hc := h.Coordinate
	if hc == nil {
		hc = h.Coordinates
	}
	if hc == nil {
		return Point{}, fmt.Errorf("%w: %s: missing coordinate", ErrInvalidHit, id)
	}
	lat, lng := hc.Lat, hc.Lng
	if lat == nil && lng == nil {
		lat, lng = hc.Latitude, hc.Longitude
	}
	if lat == nil || lng == nil {
		return Point{}, fmt.Errorf("%w: %s: incomplete coordinate", ErrInvalidHit, id)
	}
	coord, err := geo.ParseCoordinate(lat, lng)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %s: %v", ErrInvalidHit, id, err)
	}

	observedAt, err := ParseTimestamp(h.CreatedAt)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %s: %v", ErrInvalidHit, id, err)
	}

	return Point{
		ID:         id,
		Coordinate: coord,
		Weight:     weight,
		ObservedAt: observedAt,
	}, nil
}

// epochSecondsLimit separates epoch seconds from epoch milliseconds.
const epochSecondsLimit = 1e11

// ParseTimestamp accepts RFC 3339 strings, HTTP dates (the backend's JSON
// encoder emits those), epoch seconds or milliseconds, and
// {"seconds": n, "nanoseconds": n} objects.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, errors.New("missing timestamp")
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return time.Time{}, fmt.Errorf("decoding timestamp: %w", err)
	}

	switch v := decoded.(type) {
	case float64:
		return fromEpoch(v)
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		if t, err := http.ParseTime(s); err == nil {
			return t.UTC(), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	case map[string]any:
		secs, ok := v["seconds"].(float64)
		if !ok {
			secs, ok = v["_seconds"].(float64)
		}
		if !ok {
			return time.Time{}, errors.New("timestamp object without seconds")
		}
		nanos, _ := v["nanoseconds"].(float64)
		if nanos == 0 {
			nanos, _ = v["_nanoseconds"].(float64)
		}
		return time.Unix(int64(secs), int64(nanos)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", decoded)
	}
}

func fromEpoch(v float64) (time.Time, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return time.Time{}, fmt.Errorf("invalid epoch %v", v)
	}
	if v < epochSecondsLimit {
		return time.UnixMilli(int64(v * 1000)).UTC(), nil
	}
	return time.UnixMilli(int64(v)).UTC(), nil
}
