// Package capture implements the AR capture controller: the state machine
// that moves between the map and the camera drawing mode, owns the session
// annotations and keeps the map overlay in sync with them.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/scribblemap/arcapture/internal/annotation"
	"github.com/scribblemap/arcapture/internal/geo"
)

// State is a controller mode.
type State int32

const (
	MapView State = iota
	AcquiringCapture
	ARCapture
	ReleasingCapture
)

func (s State) String() string {
	switch s {
	case MapView:
		return "map_view"
	case AcquiringCapture:
		return "acquiring_capture"
	case ARCapture:
		return "ar_capture"
	case ReleasingCapture:
		return "releasing_capture"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{MapView, AcquiringCapture, ARCapture, ReleasingCapture} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown capture state %q", b)
}

// Transient reports whether s only exists while a transition is in flight.
func (s State) Transient() bool {
	return s == AcquiringCapture || s == ReleasingCapture
}

var (
	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("capture controller disposed")
	// ErrNoAnnotation is returned when an annotation id is not in the session.
	ErrNoAnnotation = errors.New("annotation not found")
	// ErrNoBackend is returned by search and upload when no backend is wired.
	ErrNoBackend = errors.New("no backend configured")
)

// Outcome describes how a capture session ended.
type Outcome string

const (
	OutcomeAnnotated         Outcome = "annotated"
	OutcomeEmpty             Outcome = "empty"
	OutcomeNoCoordinate      Outcome = "no_coordinate"
	OutcomeCaptureFailed     Outcome = "capture_failed"
	OutcomeCameraUnavailable Outcome = "camera_unavailable"
	OutcomeDisposed          Outcome = "disposed"
)

// ToggleResult reports what a ToggleCapture call did.
type ToggleResult struct {
	From    State `json:"from"`
	To      State `json:"to"`
	Ignored bool  `json:"ignored"`
	// Outcome is set when a session ended.
	Outcome    Outcome                `json:"outcome,omitempty"`
	Annotation *annotation.Annotation `json:"annotation,omitempty"`
}

// SessionInfo is a snapshot of the active capture session.
type SessionInfo struct {
	ID                  string          `json:"id"`
	StartedAt           time.Time       `json:"startedAt"`
	StreamID            string          `json:"streamId,omitempty"`
	LastKnownCoordinate *geo.Coordinate `json:"lastKnownCoordinate"`
	DrawingInProgress   bool            `json:"drawingInProgress"`
	Strokes             int             `json:"strokes"`
}

// SessionReport summarises an ended session for observers.
type SessionReport struct {
	SessionID     string
	StartedAt     time.Time
	EndedAt       time.Time
	Strokes       int
	HadCoordinate bool
	Outcome       Outcome
	AnnotationID  string
}

// Duration returns how long the session was open.
func (r SessionReport) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
