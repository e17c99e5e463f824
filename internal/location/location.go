// Package location provides one-shot device geolocation readings.
package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/scribblemap/arcapture/internal/geo"
)

var (
	// ErrLocationUnavailable covers every reason a reading could not be produced.
	ErrLocationUnavailable = errors.New("location unavailable")
	// ErrPermissionDenied is returned when geolocation access is refused.
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", ErrLocationUnavailable)
	// ErrTimeout is returned when no fix arrives in time.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrLocationUnavailable)
)

// Options mirrors the knobs of a platform position request.
type Options struct {
	HighAccuracy bool
}

// Sensor produces a single coordinate reading.
type Sensor interface {
	RequestOnce(ctx context.Context, opts Options) (geo.Coordinate, error)
}

// Static always reports the same coordinate. It stands in for a device
// without a positioning source.
type Static struct {
	Coordinate geo.Coordinate
}

// RequestOnce returns the configured coordinate.
func (s Static) RequestOnce(ctx context.Context, _ Options) (geo.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinate{}, wrapContextErr(err)
	}
	if err := s.Coordinate.Validate(); err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	return s.Coordinate, nil
}

// SensorFunc adapts a function to Sensor.
type SensorFunc func(ctx context.Context, opts Options) (geo.Coordinate, error)

// RequestOnce calls f.
func (f SensorFunc) RequestOnce(ctx context.Context, opts Options) (geo.Coordinate, error) {
	return f(ctx, opts)
}

func wrapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
}
