package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// simulatedTrack is a track with no device behind it.
type simulatedTrack struct {
	kind string
	live atomic.Bool
}

func (t *simulatedTrack) Kind() string { return t.kind }
func (t *simulatedTrack) Live() bool   { return t.live.Load() }
func (t *simulatedTrack) Stop() error {
	t.live.Store(false)
	return nil
}

// Simulated is a Feed for headless runs. It hands out streams with a single
// video track and can be told to deny access.
type Simulated struct {
	mu     sync.Mutex
	denied bool
	active map[string]*Stream
}

// NewSimulated creates a feed that grants every request.
func NewSimulated() *Simulated {
	return &Simulated{active: make(map[string]*Stream)}
}

// Deny makes later Acquire calls fail with ErrPermissionDenied.
func (f *Simulated) Deny(denied bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied = denied
}

// Acquire returns a new live stream.
func (f *Simulated) Acquire(ctx context.Context, facing Facing) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return nil, ErrPermissionDenied
	}
	t := &simulatedTrack{kind: "video"}
	t.live.Store(true)
	s := NewStream(facing, t)
	f.active[s.ID()] = s
	return s, nil
}

// Release stops the stream's tracks.
func (f *Simulated) Release(s *Stream) error {
	if s == nil {
		return nil
	}
	f.mu.Lock()
	delete(f.active, s.ID())
	f.mu.Unlock()
	return Release(s)
}

// ActiveTracks counts live tracks across unreleased streams.
func (f *Simulated) ActiveTracks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.active {
		n += s.ActiveTracks()
	}
	return n
}
