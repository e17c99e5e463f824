package capture

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/scribblemap/arcapture/internal/camera"
	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/location"
)

// session is the transient state of one AR capture. Fields other than
// id, startedAt and cancelLocation are guarded by Controller.mu.
type session struct {
	id        string
	startedAt time.Time

	stream        *camera.Stream
	videoAttached bool
	coord         *geo.Coordinate
	locationErr   error

	cancelLocation context.CancelFunc
	locationDone   chan struct{}
}

func newSession(now time.Time) *session {
	return &session{
		id:           uuid.NewString(),
		startedAt:    now,
		locationDone: make(chan struct{}),
	}
}

// requestLocation resolves a reading in the background. The reading may
// land before or after the camera is ready; either order is fine since the
// coordinate is only read at capture time.
func (c *Controller) requestLocation(s *session) {
	ctx, cancel := context.WithTimeout(c.life, c.cfg.LocationTimeout)
	s.cancelLocation = cancel

	go func() {
		defer close(s.locationDone)
		defer cancel()

		coord, err := c.location.RequestOnce(ctx, location.Options{HighAccuracy: c.cfg.HighAccuracy})
		if err == nil {
			err = coord.Validate()
		}

		c.mu.Lock()
		if err != nil {
			s.locationErr = err
		} else {
			s.coord = &coord
			c.lastCoord = &coord
		}
		c.mu.Unlock()

		switch {
		case err == nil:
			c.log.Debug("location resolved", "session", s.id, "coordinate", coord.String())
		case errors.Is(ctx.Err(), context.Canceled):
			c.log.Debug("location request cancelled", "session", s.id)
		default:
			c.log.Warn("location unavailable, captures will be discarded until a reading arrives",
				"session", s.id, "error", err)
		}
	}()
}
