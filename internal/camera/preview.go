package camera

import (
	"errors"
	"image"
	"sync"
	"time"
)

// ErrNoStream is returned when a nil stream is attached to a preview.
var ErrNoStream = errors.New("no stream to attach")

// Preview holds the newest frame of the stream currently shown in AR mode.
// Frames pushed while nothing is attached are dropped.
type Preview struct {
	mu     sync.Mutex
	stream string
	frame  image.Image
	at     time.Time
	now    func() time.Time
}

// NewPreview creates an empty, detached preview.
func NewPreview() *Preview {
	return &Preview{now: time.Now}
}

// Attach starts accepting frames for s and drops any previous frame.
func (p *Preview) Attach(s *Stream) error {
	if s == nil {
		return ErrNoStream
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stream = s.ID()
	p.frame = nil
	p.at = time.Time{}
	return nil
}

// Detach stops accepting frames and clears the last one.
func (p *Preview) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stream = ""
	p.frame = nil
	p.at = time.Time{}
}

// Push records img as the newest frame. It matches device.FrameSink.
func (p *Preview) Push(img image.Image) {
	if img == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == "" {
		return
	}
	p.frame = img
	p.at = p.now()
}

// Latest returns the newest frame, its arrival time and the attached
// stream id. ok is false until a frame arrives for an attached stream.
func (p *Preview) Latest() (img image.Image, at time.Time, stream string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame == nil {
		return nil, time.Time{}, p.stream, false
	}
	return p.frame, p.at, p.stream, true
}
