package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/scribblemap/arcapture/internal/api"
	"github.com/scribblemap/arcapture/internal/camera"
	"github.com/scribblemap/arcapture/internal/config"
	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/overlay"
	"github.com/scribblemap/arcapture/internal/search"
)

// Config holds controller tunables.
type Config struct {
	ViewportWidth   int
	ViewportHeight  int
	LocationTimeout time.Duration
	HighAccuracy    bool
	FlyToZoom       float64
	NearbyRadius    float64
	SearchWeight    float64
	ThumbnailWidth  int
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		ViewportWidth:   1280,
		ViewportHeight:  720,
		LocationTimeout: 10 * time.Second,
		HighAccuracy:    true,
		FlyToZoom:       14,
		NearbyRadius:    25,
		SearchWeight:    search.DefaultWeight,
		ThumbnailWidth:  overlay.DefaultThumbnailWidth,
	}
}

// ConfigFrom builds a Config from the loaded configuration sections.
func ConfigFrom(c config.CaptureConfig, l config.LocationConfig, searchWeight float64) Config {
	return Config{
		ViewportWidth:   c.ViewportWidth,
		ViewportHeight:  c.ViewportHeight,
		LocationTimeout: c.LocationTimeout,
		HighAccuracy:    l.HighAccuracy,
		FlyToZoom:       c.FlyToZoom,
		NearbyRadius:    c.NearbyRadius,
		SearchWeight:    searchWeight,
		ThumbnailWidth:  c.ThumbnailWidth,
	}
}

// Backend is the search and upload boundary.
type Backend interface {
	Search(ctx context.Context, query string) ([]search.Hit, error)
	Reset(ctx context.Context) error
	Upload(ctx context.Context, in api.UploadRequest) error
	Ping(ctx context.Context, coord geo.Coordinate) ([]search.Hit, error)
	All(ctx context.Context) ([]search.Hit, error)
}

// VideoOutput is the surface the camera stream is shown on.
type VideoOutput interface {
	Attach(s *camera.Stream) error
	Detach()
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig overrides the default tunables.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg = cfg
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBackend wires the search and upload boundary.
func WithBackend(b Backend) Option {
	return func(c *Controller) {
		c.backend = b
	}
}

// WithVideoOutput attaches camera streams to out while in AR mode.
func WithVideoOutput(out VideoOutput) Option {
	return func(c *Controller) {
		c.video = out
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}
