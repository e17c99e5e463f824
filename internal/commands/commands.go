// Package commands registers the capture controller's operations on the
// dispatcher so every control surface drives the controller the same way.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/scribblemap/arcapture/internal/annotation"
	"github.com/scribblemap/arcapture/internal/capture"
	"github.com/scribblemap/arcapture/internal/dispatcher"
	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/util"
)

// Command names.
const (
	CaptureToggle    = "capture:toggle"
	CaptureState     = "capture:state"
	CaptureResize    = "capture:resize"
	StrokeBegin      = "stroke:begin"
	StrokeMove       = "stroke:move"
	StrokeEnd        = "stroke:end"
	StrokePath       = "stroke:path"
	SearchQuery      = "search:query"
	SearchReset      = "search:reset"
	SearchAll        = "search:all"
	AnnotationSubmit = "annotation:submit"
	AnnotationNearby = "annotation:nearby"
	AnnotationList   = "annotation:list"
	SessionReset     = "session:reset"
)

// RemoteFlag asks annotation:nearby to include the backend's stored scribbles.
const RemoteFlag = "--remote"

// ErrBadArguments is returned when a command's arguments cannot be parsed.
var ErrBadArguments = errors.New("bad arguments")

// Controller is the subset of capture.Controller the commands drive.
type Controller interface {
	ToggleCapture(ctx context.Context) (capture.ToggleResult, error)
	State() capture.State
	Session() (capture.SessionInfo, bool)
	Resize(width, height int) error
	StrokeBegin(p drawing.Point)
	StrokeExtend(p drawing.Point)
	StrokeEnd()
	Search(ctx context.Context, query string) (capture.SearchResult, error)
	ResetSearch(ctx context.Context) error
	SubmitAnnotation(ctx context.Context, id, text string) error
	ShowAll(ctx context.Context) (capture.SearchResult, error)
	Nearby(coord geo.Coordinate, radius float64) ([]annotation.Annotation, error)
	NearbyWithRemote(ctx context.Context, coord geo.Coordinate, radius float64) (capture.NearbyResult, error)
	Annotations() []annotation.Annotation
	Markers() int
	ResetSession() error
}

// StateView is the result of capture:state.
type StateView struct {
	State   string               `json:"state"`
	Session *capture.SessionInfo `json:"session,omitempty"`
	Markers int                  `json:"markers"`
}

// StrokeResult is the result of stroke:path.
type StrokeResult struct {
	Points int `json:"points"`
}

// Service adapts a Controller to dispatcher handlers.
type Service struct {
	c Controller
}

// Register installs every command handler on d.
func Register(d *dispatcher.Dispatcher, c Controller) *Service {
	s := &Service{c: c}

	d.Register(CaptureToggle, s.toggle, dispatcher.Logged())
	d.Register(CaptureState, s.state)
	d.Register(CaptureResize, s.resize, dispatcher.Logged())

	// pointer input is high frequency and stays unlogged
	d.Register(StrokeBegin, s.strokeBegin)
	d.Register(StrokeMove, s.strokeMove)
	d.Register(StrokeEnd, s.strokeEnd)
	d.Register(StrokePath, s.strokePath)

	d.Register(SearchQuery, s.search, dispatcher.Logged())
	d.Register(SearchReset, s.searchReset, dispatcher.Logged())
	d.Register(SearchAll, s.searchAll, dispatcher.Logged())
	d.Register(AnnotationSubmit, s.submit, dispatcher.Logged())
	d.Register(AnnotationNearby, s.nearby)
	d.Register(AnnotationList, s.list)
	d.Register(SessionReset, s.sessionReset, dispatcher.Logged())

	return s
}

func badArgs(cmd string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBadArguments, cmd, err)
}

func (s *Service) toggle(ctx context.Context, _ dispatcher.Event) (any, error) {
	return s.c.ToggleCapture(ctx)
}

func (s *Service) state(_ context.Context, _ dispatcher.Event) (any, error) {
	v := StateView{State: s.c.State().String(), Markers: s.c.Markers()}
	if info, ok := s.c.Session(); ok {
		v.Session = &info
	}
	return v, nil
}

func (s *Service) resize(_ context.Context, e dispatcher.Event) (any, error) {
	v, err := util.ParseFloats(e.Args, 2)
	if err != nil {
		return nil, badArgs(e.Command, err)
	}
	// range-check before converting so huge floats cannot wrap around int
	for _, side := range v {
		if side < 1 || side > drawing.MaxViewport {
			return nil, fmt.Errorf("%w: %gx%g", drawing.ErrInvalidViewport, v[0], v[1])
		}
	}
	return nil, s.c.Resize(int(v[0]), int(v[1]))
}

func parsePoint(e dispatcher.Event) (drawing.Point, error) {
	v, err := util.ParseFloats(e.Args, 2)
	if err != nil {
		return drawing.Point{}, badArgs(e.Command, err)
	}
	return drawing.Point{X: v[0], Y: v[1]}, nil
}

func (s *Service) strokeBegin(_ context.Context, e dispatcher.Event) (any, error) {
	p, err := parsePoint(e)
	if err != nil {
		return nil, err
	}
	s.c.StrokeBegin(p)
	return nil, nil
}

func (s *Service) strokeMove(_ context.Context, e dispatcher.Event) (any, error) {
	p, err := parsePoint(e)
	if err != nil {
		return nil, err
	}
	s.c.StrokeExtend(p)
	return nil, nil
}

func (s *Service) strokeEnd(_ context.Context, _ dispatcher.Event) (any, error) {
	s.c.StrokeEnd()
	return nil, nil
}

// strokePath replays a whole stroke given as "[[x,y],...]".
func (s *Service) strokePath(_ context.Context, e dispatcher.Event) (any, error) {
	points, err := drawing.ParseStroke(util.JoinText(e.Args))
	if err != nil {
		return nil, badArgs(e.Command, err)
	}
	s.c.StrokeBegin(points[0])
	for _, p := range points[1:] {
		s.c.StrokeExtend(p)
	}
	s.c.StrokeEnd()
	return StrokeResult{Points: len(points)}, nil
}

func (s *Service) search(ctx context.Context, e dispatcher.Event) (any, error) {
	return s.c.Search(ctx, util.JoinText(e.Args))
}

func (s *Service) searchReset(ctx context.Context, _ dispatcher.Event) (any, error) {
	return nil, s.c.ResetSearch(ctx)
}

func (s *Service) searchAll(ctx context.Context, _ dispatcher.Event) (any, error) {
	return s.c.ShowAll(ctx)
}

func (s *Service) submit(ctx context.Context, e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, badArgs(e.Command, errors.New("missing annotation id"))
	}
	return nil, s.c.SubmitAnnotation(ctx, util.TrimQuotes(e.Args[0]), util.JoinText(e.Args[1:]))
}

func (s *Service) nearby(ctx context.Context, e dispatcher.Event) (any, error) {
	args := make([]string, 0, len(e.Args))
	remote := false
	for _, a := range e.Args {
		if a == RemoteFlag {
			remote = true
			continue
		}
		args = append(args, a)
	}
	if len(args) != 2 && len(args) != 3 {
		return nil, badArgs(e.Command, fmt.Errorf("expected lat lng [radius] [%s], got %d arguments", RemoteFlag, len(args)))
	}
	coord, err := geo.ParseCoordinate(util.TrimQuotes(args[0]), util.TrimQuotes(args[1]))
	if err != nil {
		return nil, badArgs(e.Command, err)
	}
	var radius float64
	if len(args) == 3 {
		v, err := util.ParseFloats(args[2:], 1)
		if err != nil {
			return nil, badArgs(e.Command, err)
		}
		radius = v[0]
	}
	if remote {
		return s.c.NearbyWithRemote(ctx, coord, radius)
	}
	return s.c.Nearby(coord, radius)
}

func (s *Service) list(_ context.Context, _ dispatcher.Event) (any, error) {
	return s.c.Annotations(), nil
}

func (s *Service) sessionReset(_ context.Context, _ dispatcher.Event) (any, error) {
	return nil, s.c.ResetSession()
}
