package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Coordinates are always WGS84 (EPSG:4326) degrees. The map client works in
// Web Mercator (EPSG:3857), so conversions go through WebMercator.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// earthRadiusMeters is the mean earth radius used for haversine distances.
const earthRadiusMeters = 6371000

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinate builds a coordinate and validates it.
func NewCoordinate(latitude, longitude float64) (Coordinate, error) {
	c := Coordinate{Latitude: latitude, Longitude: longitude}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate checks that both components are finite and in range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return fmt.Errorf("%w: non-finite component", ErrInvalidCoordinates)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinates, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinates, c.Longitude)
	}
	return nil
}

// String renders the coordinate as "lat,lng".
func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// Point returns the coordinate as a simplefeatures point with X=longitude, Y=latitude.
func (c Coordinate) Point() (geom.Point, error) {
	p, err := geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: c.Longitude, Y: c.Latitude},
			Type: geom.DimXY,
		},
	)
	if err != nil {
		return geom.Point{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return p, nil
}

// WebMercator projects the coordinate from EPSG:4326 into EPSG:3857 meters.
func (c Coordinate) WebMercator() (x, y float64) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ = f(c.Longitude, c.Latitude, 0)
	return x, y
}

// DistanceMeters returns the haversine distance between two coordinates.
func (c Coordinate) DistanceMeters(other Coordinate) float64 {
	dLat := radians(other.Latitude - c.Latitude)
	dLon := radians(other.Longitude - c.Longitude)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(c.Latitude))*math.Cos(radians(other.Latitude))*math.Pow(math.Sin(dLon/2), 2)
	return earthRadiusMeters * 2 * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ParseComponent parses one coordinate component that may arrive as a JSON
// number, a decimal string, or a quoted decimal string.
func ParseComponent(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, ErrInvalidCoordinates
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, ErrInvalidCoordinates
		}
		return f, nil
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return 0, ErrInvalidCoordinates
		}
		return ParseComponent(decoded)
	default:
		return 0, ErrInvalidCoordinates
	}
}

// ParseCoordinate parses a latitude/longitude pair from loosely typed values
// and validates the result.
func ParseCoordinate(lat, lng any) (Coordinate, error) {
	latitude, err := ParseComponent(lat)
	if err != nil {
		return Coordinate{}, fmt.Errorf("latitude: %w", err)
	}
	longitude, err := ParseComponent(lng)
	if err != nil {
		return Coordinate{}, fmt.Errorf("longitude: %w", err)
	}
	return NewCoordinate(latitude, longitude)
}

// CoordinateFromString parses a string in the format "lat,lng".
func CoordinateFromString(coords string) (Coordinate, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return Coordinate{}, ErrInvalidCoordinates
	}
	return ParseCoordinate(parts[0], parts[1])
}
