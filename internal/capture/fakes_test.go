package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scribblemap/arcapture/internal/annotation"
	"github.com/scribblemap/arcapture/internal/api"
	"github.com/scribblemap/arcapture/internal/camera"
	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/location"
	"github.com/scribblemap/arcapture/internal/overlay"
	"github.com/scribblemap/arcapture/internal/search"
)

type fakeTrack struct {
	live atomic.Bool
}

func newFakeTrack() *fakeTrack {
	t := &fakeTrack{}
	t.live.Store(true)
	return t
}

func (t *fakeTrack) Kind() string { return "video" }
func (t *fakeTrack) Live() bool   { return t.live.Load() }
func (t *fakeTrack) Stop() error {
	t.live.Store(false)
	return nil
}

// fakeFeed hands out single-track streams. When gate is set, Acquire blocks
// until it is closed; entered receives one value per Acquire call.
type fakeFeed struct {
	mu       sync.Mutex
	acquired int
	released int
	streams  []*camera.Stream
	err      error
	gate     chan struct{}
	entered  chan struct{}
}

func (f *fakeFeed) Acquire(ctx context.Context, facing camera.Facing) (*camera.Stream, error) {
	f.mu.Lock()
	f.acquired++
	gate, entered, err := f.gate, f.entered, f.err
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := camera.NewStream(facing, newFakeTrack(), newFakeTrack())
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeFeed) Release(s *camera.Stream) error {
	f.mu.Lock()
	f.released++
	f.mu.Unlock()
	return camera.Release(s)
}

func (f *fakeFeed) activeTracks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.streams {
		n += s.ActiveTracks()
	}
	return n
}

func (f *fakeFeed) counts() (acquired, released int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired, f.released
}

// blockingSensor never resolves until its context ends.
func blockingSensor() location.Sensor {
	return location.SensorFunc(func(ctx context.Context, _ location.Options) (geo.Coordinate, error) {
		<-ctx.Done()
		return geo.Coordinate{}, location.ErrTimeout
	})
}

// gatedSensor resolves to coord once release is closed.
func gatedSensor(coord geo.Coordinate, release <-chan struct{}) location.Sensor {
	return location.SensorFunc(func(ctx context.Context, _ location.Options) (geo.Coordinate, error) {
		select {
		case <-release:
			return coord, nil
		case <-ctx.Done():
			return geo.Coordinate{}, location.ErrTimeout
		}
	})
}

// gatedRenderer blocks AddMarker on gate while it is non-nil.
type gatedRenderer struct {
	*overlay.Recorder
	gate    chan struct{}
	entered chan struct{}
}

func (r *gatedRenderer) AddMarker(coord geo.Coordinate, p overlay.Payload) (overlay.MarkerHandle, error) {
	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.gate != nil {
		<-r.gate
	}
	return r.Recorder.AddMarker(coord, p)
}

type fakeBackend struct {
	mu        sync.Mutex
	hits      []search.Hit
	searchErr error
	resetErr  error
	uploadErr error
	pingHits  []search.Hit
	pingErr   error
	allHits   []search.Hit
	allErr    error
	queries   []string
	resets    int
	uploads   []api.UploadRequest
	pings     []geo.Coordinate
}

func (b *fakeBackend) Search(_ context.Context, query string) ([]search.Hit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries = append(b.queries, query)
	if b.searchErr != nil {
		return nil, b.searchErr
	}
	return b.hits, nil
}

func (b *fakeBackend) Reset(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
	return b.resetErr
}

func (b *fakeBackend) Upload(_ context.Context, in api.UploadRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return b.uploadErr
	}
	b.uploads = append(b.uploads, in)
	return nil
}

func (b *fakeBackend) Ping(_ context.Context, coord geo.Coordinate) ([]search.Hit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pings = append(b.pings, coord)
	if b.pingErr != nil {
		return nil, b.pingErr
	}
	return b.pingHits, nil
}

func (b *fakeBackend) All(context.Context) ([]search.Hit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allErr != nil {
		return nil, b.allErr
	}
	return b.allHits, nil
}

type fakeVideo struct {
	mu        sync.Mutex
	attached  int
	detached  int
	attachErr error
}

func (v *fakeVideo) Attach(*camera.Stream) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.attachErr != nil {
		return v.attachErr
	}
	v.attached++
	return nil
}

func (v *fakeVideo) Detach() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.detached++
}

var toronto = geo.Coordinate{Latitude: 43.64, Longitude: -79.39}

type harness struct {
	c        *Controller
	feed     *fakeFeed
	renderer overlay.Renderer
	recorder *overlay.Recorder
	store    *annotation.MemoryStore
	backend  *fakeBackend
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ViewportWidth = 64
	cfg.ViewportHeight = 48
	cfg.LocationTimeout = 5 * time.Second
	return cfg
}

func newHarness(t *testing.T, sensor location.Sensor, opts ...Option) *harness {
	t.Helper()
	rec := overlay.NewRecorder()
	return newHarnessWithRenderer(t, sensor, rec, rec, opts...)
}

func newHarnessWithRenderer(t *testing.T, sensor location.Sensor, r overlay.Renderer, rec *overlay.Recorder, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		feed:     &fakeFeed{},
		renderer: r,
		recorder: rec,
		store:    annotation.NewMemoryStore(),
		backend:  &fakeBackend{},
	}
	all := append([]Option{WithConfig(testConfig()), WithBackend(h.backend)}, opts...)
	h.c = New(h.feed, sensor, drawing.NewSurface(drawing.DefaultStyle()), h.store, r, all...)
	t.Cleanup(func() { _ = h.c.Dispose(context.Background()) })
	return h
}

// enterAR toggles into ARCapture and fails the test otherwise.
func (h *harness) enterAR(t *testing.T) {
	t.Helper()
	res, err := h.c.ToggleCapture(context.Background())
	require.NoError(t, err)
	require.Equal(t, ARCapture, res.To)
}

// waitForCoordinate blocks until the active session has a reading.
func (h *harness) waitForCoordinate(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, ok := h.c.Session()
		return ok && info.LastKnownCoordinate != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) scribble() {
	h.c.StrokeBegin(drawing.Point{X: 5, Y: 5})
	h.c.StrokeExtend(drawing.Point{X: 30, Y: 20})
	h.c.StrokeExtend(drawing.Point{X: 50, Y: 40})
	h.c.StrokeEnd()
}

var errBoom = errors.New("boom")
