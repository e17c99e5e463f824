package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scribblemap/arcapture/internal/annotation"
	"github.com/scribblemap/arcapture/internal/camera"
	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/location"
	"github.com/scribblemap/arcapture/internal/overlay"
)

// Controller is the AR capture state machine. It owns the annotation store
// and the renderer it is given; Dispose releases both.
type Controller struct {
	camera   camera.Feed
	location location.Sensor
	surface  *drawing.Surface
	store    annotation.Store
	renderer overlay.Renderer
	markers  *overlay.MarkerSet
	backend  Backend
	video    VideoOutput

	cfg Config
	log *slog.Logger
	now func() time.Time

	life       context.Context
	cancelLife context.CancelFunc

	mu        sync.Mutex
	state     State
	session   *session
	lastCoord *geo.Coordinate
	disposed  bool
	inflight  sync.WaitGroup

	// syncMu serialises store mutations with marker reconciliation.
	syncMu sync.Mutex

	// Lock-free mirrors for log context providers.
	stateView   atomic.Int32
	sessionView atomic.Pointer[string]

	onState      listeners[StateChange]
	onAnnotation listeners[annotation.Annotation]
	onSession    listeners[SessionReport]
}

// New creates a controller in MapView.
func New(
	feed camera.Feed,
	sensor location.Sensor,
	surface *drawing.Surface,
	store annotation.Store,
	renderer overlay.Renderer,
	opts ...Option,
) *Controller {
	c := &Controller{
		camera:   feed,
		location: sensor,
		surface:  surface,
		store:    store,
		renderer: renderer,
		cfg:      DefaultConfig(),
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "capture")
	c.markers = overlay.NewMarkerSet(overlay.PayloadBuilder{ThumbnailWidth: c.cfg.ThumbnailWidth})
	c.life, c.cancelLife = context.WithCancel(context.Background())
	return c
}

// State returns the current mode.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setStateLocked changes state and returns the change to emit once the lock
// is released.
func (c *Controller) setStateLocked(to State) StateChange {
	ch := StateChange{From: c.state, To: to}
	c.state = to
	c.stateView.Store(int32(to))
	return ch
}

func (c *Controller) emitState(ch StateChange) {
	if ch.From == ch.To {
		return
	}
	c.log.Debug("state changed", "from", ch.From.String(), "to", ch.To.String())
	c.onState.emit(ch)
}

// LogAttrs returns the current state and session id without taking the
// controller lock, for use as a logging context provider.
func (c *Controller) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("captureState", State(c.stateView.Load()).String())}
	if id := c.sessionView.Load(); id != nil {
		attrs = append(attrs, slog.String("captureSession", *id))
	}
	return attrs
}

// Session returns a snapshot of the active capture session, or false in
// MapView.
func (c *Controller) Session() (SessionInfo, bool) {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return SessionInfo{}, false
	}
	info := SessionInfo{
		ID:        s.id,
		StartedAt: s.startedAt,
	}
	if s.stream != nil {
		info.StreamID = s.stream.ID()
	}
	if s.coord != nil {
		coord := *s.coord
		info.LastKnownCoordinate = &coord
	}
	c.mu.Unlock()

	info.DrawingInProgress = c.surface.Drawing()
	info.Strokes = c.surface.StrokeCount()
	return info, true
}

// Annotations returns the session annotations in capture order.
func (c *Controller) Annotations() []annotation.Annotation {
	return c.store.Snapshot()
}

// Markers returns the number of markers currently placed.
func (c *Controller) Markers() int {
	return c.markers.Len()
}

// OnStateChanged subscribes fn to state transitions.
func (c *Controller) OnStateChanged(fn func(StateChange)) (unsubscribe func()) {
	return c.onState.add(fn)
}

// OnAnnotationCaptured subscribes fn to new annotations. fn runs after the
// markers have been reconciled.
func (c *Controller) OnAnnotationCaptured(fn func(annotation.Annotation)) (unsubscribe func()) {
	return c.onAnnotation.add(fn)
}

// OnSessionEnded subscribes fn to capture session reports.
func (c *Controller) OnSessionEnded(fn func(SessionReport)) (unsubscribe func()) {
	return c.onSession.add(fn)
}

// RequestToggleCapture is ToggleCapture without a result, for callers that
// only observe events.
func (c *Controller) RequestToggleCapture(ctx context.Context) error {
	_, err := c.ToggleCapture(ctx)
	return err
}

// ToggleCapture enters AR mode from MapView or leaves it from ARCapture.
// Calls made while a transition is in flight are ignored.
func (c *Controller) ToggleCapture(ctx context.Context) (ToggleResult, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ToggleResult{}, ErrDisposed
	}

	switch c.state {
	case MapView:
		ch := c.setStateLocked(AcquiringCapture)
		s := newSession(c.now())
		c.inflight.Add(1)
		c.mu.Unlock()
		c.emitState(ch)
		defer c.inflight.Done()
		return c.acquire(ctx, s)

	case ARCapture:
		ch := c.setStateLocked(ReleasingCapture)
		s := c.session
		c.inflight.Add(1)
		c.mu.Unlock()
		c.emitState(ch)
		defer c.inflight.Done()
		return c.release(s), nil

	default:
		st := c.state
		c.mu.Unlock()
		c.log.Debug("toggle ignored during transition", "state", st.String())
		return ToggleResult{From: st, To: st, Ignored: true}, nil
	}
}

// acquire runs MapView -> AcquiringCapture -> ARCapture. The location
// request starts first and is never waited on.
func (c *Controller) acquire(ctx context.Context, s *session) (ToggleResult, error) {
	c.requestLocation(s)

	stream, err := c.camera.Acquire(ctx, camera.FacingEnvironment)
	if err != nil {
		if !errors.Is(err, camera.ErrCameraUnavailable) {
			err = fmt.Errorf("%w: %v", camera.ErrCameraUnavailable, err)
		}
		c.log.Warn("camera unavailable, staying on map", "error", err)
		c.abortAcquire(s, OutcomeCameraUnavailable)
		return ToggleResult{From: MapView, To: MapView, Outcome: OutcomeCameraUnavailable}, err
	}

	c.mu.Lock()
	s.stream = stream
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		c.abortAcquire(s, OutcomeDisposed)
		return ToggleResult{From: MapView, To: MapView, Outcome: OutcomeDisposed}, ErrDisposed
	}

	if c.video != nil {
		if err := c.video.Attach(stream); err != nil {
			c.log.Error("attaching video output failed", "error", err)
			c.abortAcquire(s, OutcomeCameraUnavailable)
			return ToggleResult{From: MapView, To: MapView, Outcome: OutcomeCameraUnavailable},
				fmt.Errorf("%w: attaching video output: %v", camera.ErrCameraUnavailable, err)
		}
		c.mu.Lock()
		s.videoAttached = true
		c.mu.Unlock()
	}

	c.mu.Lock()
	width, height := c.cfg.ViewportWidth, c.cfg.ViewportHeight
	c.mu.Unlock()
	if err := c.surface.Arm(width, height); err != nil {
		c.log.Error("arming drawing surface failed", "error", err)
		c.abortAcquire(s, OutcomeCaptureFailed)
		return ToggleResult{From: MapView, To: MapView, Outcome: OutcomeCaptureFailed}, err
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		c.abortAcquire(s, OutcomeDisposed)
		return ToggleResult{From: MapView, To: MapView, Outcome: OutcomeDisposed}, ErrDisposed
	}
	c.session = s
	c.sessionView.Store(&s.id)
	ch := c.setStateLocked(ARCapture)
	c.mu.Unlock()
	c.emitState(ch)

	c.log.Info("capture session started", "session", s.id, "stream", stream.ID())
	return ToggleResult{From: MapView, To: ARCapture}, nil
}

// abortAcquire tears down a partially acquired session and returns to MapView.
func (c *Controller) abortAcquire(s *session, outcome Outcome) {
	c.teardown(s)

	c.mu.Lock()
	ch := c.setStateLocked(MapView)
	c.mu.Unlock()
	c.emitState(ch)

	c.onSession.emit(SessionReport{
		SessionID: s.id,
		StartedAt: s.startedAt,
		EndedAt:   c.now(),
		Outcome:   outcome,
	})
}

// release runs ARCapture -> ReleasingCapture -> MapView. Teardown always
// happens, whatever the capture produced.
func (c *Controller) release(s *session) ToggleResult {
	res := ToggleResult{From: ARCapture, To: MapView}
	strokes := c.surface.StrokeCount()

	img, drawn, capErr := c.surface.Capture()

	c.mu.Lock()
	var coord *geo.Coordinate
	if s.coord != nil {
		cp := *s.coord
		coord = &cp
	}
	c.mu.Unlock()

	switch {
	case capErr != nil:
		c.log.Error("capturing drawing failed", "session", s.id, "error", capErr)
		res.Outcome = OutcomeCaptureFailed
	case !drawn:
		c.log.Debug("nothing drawn, discarding capture", "session", s.id)
		res.Outcome = OutcomeEmpty
	case coord == nil:
		c.log.Info("no coordinate yet, discarding capture", "session", s.id)
		res.Outcome = OutcomeNoCoordinate
	default:
		a, err := c.appendAnnotation(*coord, img)
		if err != nil {
			c.log.Error("storing annotation failed", "session", s.id, "error", err)
			res.Outcome = OutcomeCaptureFailed
		} else {
			res.Outcome = OutcomeAnnotated
			res.Annotation = &a
		}
	}

	c.teardown(s)

	c.mu.Lock()
	c.session = nil
	c.sessionView.Store(nil)
	ch := c.setStateLocked(MapView)
	last := c.lastCoord
	c.mu.Unlock()
	c.emitState(ch)

	if last != nil {
		if err := c.renderer.FlyTo(*last, c.cfg.FlyToZoom); err != nil {
			c.log.Warn("flying to last location failed", "error", err)
		}
	}

	report := SessionReport{
		SessionID:     s.id,
		StartedAt:     s.startedAt,
		EndedAt:       c.now(),
		Strokes:       strokes,
		HadCoordinate: coord != nil,
		Outcome:       res.Outcome,
	}
	if res.Annotation != nil {
		report.AnnotationID = res.Annotation.ID
		c.onAnnotation.emit(*res.Annotation)
	}
	c.onSession.emit(report)

	c.log.Info("capture session ended", "session", s.id, "outcome", string(res.Outcome), "strokes", strokes)
	return res
}

// appendAnnotation stores a new annotation and reconciles the markers
// before returning.
func (c *Controller) appendAnnotation(coord geo.Coordinate, img drawing.RasterImage) (annotation.Annotation, error) {
	a, err := annotation.New(coord, img, c.now())
	if err != nil {
		return annotation.Annotation{}, err
	}

	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	if err := c.store.Append(a); err != nil {
		return annotation.Annotation{}, err
	}
	if err := c.markers.Reconcile(c.renderer, c.store.Snapshot()); err != nil {
		c.log.Warn("marker reconciliation incomplete", "error", err)
	}
	return a, nil
}

// teardown releases everything a session may hold. Every step runs even if
// an earlier one fails.
func (c *Controller) teardown(s *session) {
	if s.cancelLocation != nil {
		s.cancelLocation()
	}

	c.mu.Lock()
	stream := s.stream
	attached := s.videoAttached
	s.videoAttached = false
	c.mu.Unlock()

	if stream != nil {
		if err := c.camera.Release(stream); err != nil {
			c.log.Warn("stopping camera stream", "stream", stream.ID(), "error", err)
		}
	}
	if attached && c.video != nil {
		c.video.Detach()
	}
	c.surface.Release()
}

// StrokeBegin starts a stroke. It is a no-op outside ARCapture.
func (c *Controller) StrokeBegin(p drawing.Point) {
	c.surface.StrokeBegin(p)
}

// StrokeExtend extends the current stroke. Points outside the surface are
// kept so that a drag leaving the surface continues until StrokeEnd.
func (c *Controller) StrokeExtend(p drawing.Point) {
	c.surface.StrokeExtend(p)
}

// StrokeEnd finishes the current stroke.
func (c *Controller) StrokeEnd() {
	c.surface.StrokeEnd()
}

// Resize follows a viewport change. The new size applies to the active
// surface and to later sessions.
func (c *Controller) Resize(width, height int) error {
	if err := drawing.ValidateViewport(width, height); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg.ViewportWidth, c.cfg.ViewportHeight = width, height
	c.mu.Unlock()
	if c.surface.Armed() {
		return c.surface.Resize(width, height)
	}
	return nil
}

// ResetSession clears every annotation and the markers showing them.
func (c *Controller) ResetSession() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.mu.Unlock()

	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("clearing annotations: %w", err)
	}
	return c.markers.Reconcile(c.renderer, c.store.Snapshot())
}

// Dispose forces teardown of any active session, waits for an in-flight
// transition, removes markers and heatmap, disposes the renderer, closes
// the store and detaches every listener. Later calls return nil.
func (c *Controller) Dispose(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	var s *session
	hadCoord := false
	if c.state == ARCapture {
		s = c.session
		hadCoord = s.coord != nil
		c.session = nil
		c.sessionView.Store(nil)
	}
	c.mu.Unlock()

	// An in-flight acquisition observes disposed and tears itself down; a
	// release runs to completion.
	c.cancelLife()
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for transition: %w", ctx.Err()))
	}

	if s != nil {
		c.teardown(s)
		c.onSession.emit(SessionReport{
			SessionID:     s.id,
			StartedAt:     s.startedAt,
			EndedAt:       c.now(),
			HadCoordinate: hadCoord,
			Outcome:       OutcomeDisposed,
		})
	}

	c.mu.Lock()
	ch := c.setStateLocked(MapView)
	c.mu.Unlock()
	c.emitState(ch)

	c.syncMu.Lock()
	if err := c.markers.Reset(c.renderer); err != nil {
		errs = append(errs, err)
	}
	c.syncMu.Unlock()
	if err := c.renderer.ClearHeatmapSource(); err != nil && !errors.Is(err, overlay.ErrDisposed) {
		errs = append(errs, err)
	}
	if err := c.renderer.Dispose(); err != nil {
		errs = append(errs, fmt.Errorf("disposing renderer: %w", err))
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	c.onState.clear()
	c.onAnnotation.clear()
	c.onSession.clear()

	c.log.Info("capture controller disposed")
	return errors.Join(errs...)
}
