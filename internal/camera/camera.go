// Package camera wraps acquisition and release of a live video stream.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrCameraUnavailable covers every reason a stream could not be acquired.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrPermissionDenied is returned when the user or platform refuses access.
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", ErrCameraUnavailable)
	// ErrNoDevice is returned when no device matches the requested facing.
	ErrNoDevice = fmt.Errorf("%w: no matching device", ErrCameraUnavailable)
)

// Facing selects which physical camera to open.
type Facing string

const (
	FacingEnvironment Facing = "environment" // rear
	FacingUser        Facing = "user"        // front
)

// Track is one constituent media track of a stream.
type Track interface {
	Kind() string
	Stop() error
	Live() bool
}

// Stream is a handle on an acquired video stream.
type Stream struct {
	id     string
	facing Facing
	tracks []Track

	once    sync.Once
	stopErr error
}

// NewStream wraps the given tracks into a stream handle.
func NewStream(facing Facing, tracks ...Track) *Stream {
	return &Stream{
		id:     uuid.NewString(),
		facing: facing,
		tracks: tracks,
	}
}

// ID returns the stream's unique id.
func (s *Stream) ID() string { return s.id }

// Facing returns which camera the stream came from.
func (s *Stream) Facing() Facing { return s.facing }

// Tracks returns the stream's tracks.
func (s *Stream) Tracks() []Track { return s.tracks }

// ActiveTracks counts tracks that are still live.
func (s *Stream) ActiveTracks() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.tracks {
		if t.Live() {
			n++
		}
	}
	return n
}

// Stop stops every track. Only the first call has an effect; later calls
// return the first call's result.
func (s *Stream) Stop() error {
	s.once.Do(func() {
		var errs []error
		for _, t := range s.tracks {
			if err := t.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("stopping %s track: %w", t.Kind(), err))
			}
		}
		s.stopErr = errors.Join(errs...)
	})
	return s.stopErr
}

// Feed acquires and releases camera streams.
type Feed interface {
	// Acquire opens a stream from the camera with the given facing. Failures
	// wrap ErrCameraUnavailable.
	Acquire(ctx context.Context, facing Facing) (*Stream, error)
	// Release stops every track of the stream. It is idempotent.
	Release(s *Stream) error
}

// Release stops s if non-nil. Feeds can delegate their Release to it.
func Release(s *Stream) error {
	if s == nil {
		return nil
	}
	return s.Stop()
}
