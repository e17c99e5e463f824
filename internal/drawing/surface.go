// Package drawing owns the free-hand annotation surface drawn over the camera feed.
package drawing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gg"
)

// DataURIPrefix is prepended to every captured PNG.
const DataURIPrefix = "data:image/png;base64,"

// MaxViewport bounds each side of the surface in pixels.
const MaxViewport = 8192

// ErrInvalidViewport is returned when Arm or Resize receive a size outside
// 1..MaxViewport on either side.
var ErrInvalidViewport = errors.New("invalid viewport size")

// ValidateViewport checks a viewport size before any pixels are allocated.
func ValidateViewport(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxViewport || height > MaxViewport {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, width, height)
	}
	return nil
}

// Point is a pointer position in surface pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Style controls how strokes are rasterized.
type Style struct {
	Width float64
	Color string // hex, e.g. "#ff0000"
}

// DefaultStyle matches the map client's pen: 3px, round, red.
func DefaultStyle() Style {
	return Style{Width: 3, Color: "#ff0000"}
}

// RasterImage is an encoded bitmap, as a PNG data URI.
type RasterImage string

// Bytes decodes the PNG payload of the data URI.
func (r RasterImage) Bytes() ([]byte, error) {
	s := string(r)
	if !strings.HasPrefix(s, DataURIPrefix) {
		return nil, fmt.Errorf("not a PNG data URI")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(s, DataURIPrefix))
}

// NewRasterImage wraps PNG bytes in a data URI.
func NewRasterImage(png []byte) RasterImage {
	return RasterImage(DataURIPrefix + base64.StdEncoding.EncodeToString(png))
}

// Surface is a pixel canvas bound to pointer input. All methods are safe for
// concurrent use; strokes are no-ops unless the surface is armed.
type Surface struct {
	mu      sync.Mutex
	style   Style
	dc      *gg.Context
	strokes [][]Point
	drawing bool
}

// NewSurface creates an unarmed surface.
func NewSurface(style Style) *Surface {
	if style.Width <= 0 {
		style.Width = DefaultStyle().Width
	}
	if style.Color == "" {
		style.Color = DefaultStyle().Color
	}
	return &Surface{style: style}
}

// Arm acquires a drawing context sized to the viewport. The surface always
// starts empty, even if it was armed before.
func (s *Surface) Arm(width, height int) error {
	if err := ValidateViewport(width, height); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dc != nil {
		_ = s.dc.Close()
	}
	s.dc = gg.NewContext(width, height)
	s.dc.Clear()
	s.applyStyle()
	s.strokes = nil
	s.drawing = false
	return nil
}

func (s *Surface) applyStyle() {
	s.dc.SetLineWidth(s.style.Width)
	s.dc.SetLineCap(gg.LineCapRound)
	s.dc.SetLineJoin(gg.LineJoinRound)
	s.dc.SetHexColor(s.style.Color)
}

// Armed reports whether the surface currently holds a drawing context.
func (s *Surface) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dc != nil
}

// Size returns the armed dimensions, or zero when released.
func (s *Surface) Size() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dc == nil {
		return 0, 0
	}
	return s.dc.Width(), s.dc.Height()
}

// StrokeBegin starts a new path at p.
func (s *Surface) StrokeBegin(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dc == nil {
		return
	}
	s.strokes = append(s.strokes, []Point{p})
	s.drawing = true
	s.dc.ClearPath()
	s.dc.MoveTo(p.X, p.Y)
}

// StrokeExtend appends p to the current path. Points outside the surface are
// kept so a drag that leaves and re-enters the surface stays continuous.
func (s *Surface) StrokeExtend(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dc == nil || !s.drawing {
		return
	}
	last := len(s.strokes) - 1
	prev := s.strokes[last][len(s.strokes[last])-1]
	s.strokes[last] = append(s.strokes[last], p)

	s.dc.ClearPath()
	s.dc.MoveTo(prev.X, prev.Y)
	s.dc.LineTo(p.X, p.Y)
	_ = s.dc.Stroke()
}

// StrokeEnd finishes the current path.
func (s *Surface) StrokeEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawing = false
}

// Drawing reports whether a stroke is in progress.
func (s *Surface) Drawing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawing
}

// StrokeCount returns the number of strokes since Arm.
func (s *Surface) StrokeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.strokes)
}

// Resize changes the viewport and re-rasterizes existing strokes.
func (s *Surface) Resize(width, height int) error {
	if err := ValidateViewport(width, height); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dc == nil {
		return nil
	}
	if err := s.dc.Resize(width, height); err != nil {
		return err
	}
	s.dc.Clear()
	s.applyStyle()
	for _, stroke := range s.strokes {
		s.rasterize(stroke)
	}
	return nil
}

func (s *Surface) rasterize(stroke []Point) {
	if len(stroke) < 2 {
		return
	}
	s.dc.ClearPath()
	s.dc.MoveTo(stroke[0].X, stroke[0].Y)
	for _, p := range stroke[1:] {
		s.dc.LineTo(p.X, p.Y)
	}
	_ = s.dc.Stroke()
}

// Capture encodes every stroke drawn since Arm. It returns an empty image and
// false when nothing was drawn or the surface is not armed.
func (s *Surface) Capture() (RasterImage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dc == nil || len(s.strokes) == 0 {
		return "", false, nil
	}

	var buf bytes.Buffer
	if err := s.dc.EncodePNG(&buf); err != nil {
		return "", false, fmt.Errorf("encoding surface: %w", err)
	}
	return NewRasterImage(buf.Bytes()), true, nil
}

// Release detaches the drawing context and discards strokes. Safe to call
// on an unarmed surface.
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dc != nil {
		_ = s.dc.Close()
		s.dc = nil
	}
	s.strokes = nil
	s.drawing = false
}
