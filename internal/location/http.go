package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/scribblemap/arcapture/internal/geo"
)

// positionResponse accepts both {latitude, longitude} and {lat, lon} payloads.
type positionResponse struct {
	Latitude  any `json:"latitude"`
	Longitude any `json:"longitude"`
	Lat       any `json:"lat"`
	Lon       any `json:"lon"`
}

// HTTPSensor resolves the device position from a geolocation endpoint.
type HTTPSensor struct {
	url        string
	httpClient *http.Client
}

// NewHTTPSensor creates a sensor that GETs url for each reading.
func NewHTTPSensor(url string, timeout time.Duration) *HTTPSensor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSensor{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RequestOnce performs one request. 401/403 map to ErrPermissionDenied.
func (s *HTTPSensor) RequestOnce(ctx context.Context, opts Options) (geo.Coordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	if opts.HighAccuracy {
		q := req.URL.Query()
		q.Set("enableHighAccuracy", "true")
		req.URL.RawQuery = q.Encode()
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return geo.Coordinate{}, wrapContextErr(ctxErr)
		}
		return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return geo.Coordinate{}, ErrPermissionDenied
	default:
		return geo.Coordinate{}, fmt.Errorf("%w: status %d", ErrLocationUnavailable, resp.StatusCode)
	}

	var body positionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: decoding position: %v", ErrLocationUnavailable, err)
	}

	lat, lng := body.Latitude, body.Longitude
	if lat == nil && lng == nil {
		lat, lng = body.Lat, body.Lon
	}
	c, err := geo.ParseCoordinate(lat, lng)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	return c, nil
}
