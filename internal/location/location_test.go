package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribblemap/arcapture/internal/geo"
)

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(ErrPermissionDenied, ErrLocationUnavailable))
	assert.True(t, errors.Is(ErrTimeout, ErrLocationUnavailable))
	assert.False(t, errors.Is(ErrTimeout, ErrPermissionDenied))
}

func TestStatic_RequestOnce(t *testing.T) {
	s := Static{Coordinate: geo.Coordinate{Latitude: 43.64, Longitude: -79.39}}

	c, err := s.RequestOnce(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 43.64, c.Latitude)
}

func TestStatic_InvalidCoordinate(t *testing.T) {
	s := Static{Coordinate: geo.Coordinate{Latitude: 200}}

	_, err := s.RequestOnce(context.Background(), Options{})

	assert.ErrorIs(t, err, ErrLocationUnavailable)
}

func TestStatic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := Static{}.RequestOnce(ctx, Options{})

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSensorFunc(t *testing.T) {
	var got Options
	f := SensorFunc(func(_ context.Context, opts Options) (geo.Coordinate, error) {
		got = opts
		return geo.Coordinate{Latitude: 1, Longitude: 2}, nil
	})

	c, err := f.RequestOnce(context.Background(), Options{HighAccuracy: true})

	require.NoError(t, err)
	assert.True(t, got.HighAccuracy)
	assert.Equal(t, geo.Coordinate{Latitude: 1, Longitude: 2}, c)
}

func TestHTTPSensor_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("enableHighAccuracy"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"latitude": 43.64, "longitude": "-79.39"}`))
	}))
	defer server.Close()

	s := NewHTTPSensor(server.URL, time.Second)
	c, err := s.RequestOnce(context.Background(), Options{HighAccuracy: true})

	require.NoError(t, err)
	assert.Equal(t, geo.Coordinate{Latitude: 43.64, Longitude: -79.39}, c)
}

func TestHTTPSensor_LatLonShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"lat": 10, "lon": 20}`))
	}))
	defer server.Close()

	c, err := NewHTTPSensor(server.URL, time.Second).RequestOnce(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, geo.Coordinate{Latitude: 10, Longitude: 20}, c)
}

func TestHTTPSensor_PermissionDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewHTTPSensor(server.URL, time.Second).RequestOnce(context.Background(), Options{})

	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestHTTPSensor_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewHTTPSensor(server.URL, time.Second).RequestOnce(context.Background(), Options{})

	assert.ErrorIs(t, err, ErrLocationUnavailable)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}

func TestHTTPSensor_MalformedPosition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"latitude": "north", "longitude": 1}`))
	}))
	defer server.Close()

	_, err := NewHTTPSensor(server.URL, time.Second).RequestOnce(context.Background(), Options{})

	assert.ErrorIs(t, err, ErrLocationUnavailable)
}

func TestHTTPSensor_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPSensor(server.URL, 5*time.Second).RequestOnce(ctx, Options{})

	assert.ErrorIs(t, err, ErrTimeout)
}
