// Package http exposes the capture controller over a fiber HTTP API. Every
// request is translated into a dispatcher command.
package http

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/scribblemap/arcapture/internal/commands"
	"github.com/scribblemap/arcapture/internal/dispatcher"
	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/overlay"
)

// Dispatcher routes commands to the controller.
type Dispatcher interface {
	Dispatch(ctx context.Context, e dispatcher.Event) (any, error)
}

// OverlayViewer exposes the recorded map state.
type OverlayViewer interface {
	View() overlay.View
}

// FrameSource exposes the newest camera frame shown in AR mode.
type FrameSource interface {
	Latest() (img image.Image, at time.Time, stream string, ok bool)
}

// Handler contains all HTTP handlers
type Handler struct {
	d       Dispatcher
	overlay OverlayViewer
	preview FrameSource
	version string
}

// NewHandler creates a new handler. viewer may be nil when the map is
// rendered only by a remote client.
func NewHandler(d Dispatcher, viewer OverlayViewer, version string) *Handler {
	return &Handler{d: d, overlay: viewer, version: version}
}

// WithPreview serves the live camera frame from src.
func (h *Handler) WithPreview(src FrameSource) *Handler {
	h.preview = src
	return h
}

func (h *Handler) dispatch(c *fiber.Ctx, command string, args ...string) (any, error) {
	return h.d.Dispatch(c.UserContext(), dispatcher.Event{
		Command:   command,
		Args:      args,
		Source:    "http",
		Timestamp: time.Now(),
	})
}

// respond dispatches command and writes its result as {"success": true, "data": ...}.
func (h *Handler) respond(c *fiber.Ctx, command string, args ...string) error {
	result, err := h.dispatch(c, command, args...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	result, err := h.dispatch(c, commands.CaptureState)
	if err != nil {
		return err
	}
	state := ""
	if v, ok := result.(commands.StateView); ok {
		state = v.State
	}
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": AppName,
		"version": h.version,
		"state":   state,
	})
}

// GetCapture returns the controller state and active session.
func (h *Handler) GetCapture(c *fiber.Ctx) error {
	return h.respond(c, commands.CaptureState)
}

// ToggleCapture enters or leaves AR capture.
func (h *Handler) ToggleCapture(c *fiber.Ctx) error {
	return h.respond(c, commands.CaptureToggle)
}

// StrokesRequest carries one stroke as [[x,y],...].
type StrokesRequest struct {
	Points [][]float64 `json:"points"`
}

// PostStrokes draws one stroke on the surface.
func (h *Handler) PostStrokes(c *fiber.Ctx) error {
	var req StrokesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	path, err := json.Marshal(req.Points)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid stroke")
	}
	if _, err := drawing.ParseStroke(string(path)); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return h.respond(c, commands.StrokePath, string(path))
}

// ResizeRequest is the new viewport size.
type ResizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Resize updates the drawing surface viewport.
func (h *Handler) Resize(c *fiber.Ctx) error {
	var req ResizeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return h.respond(c, commands.CaptureResize, strconv.Itoa(req.Width), strconv.Itoa(req.Height))
}

// GetFrame returns the newest camera frame as a JPEG.
func (h *Handler) GetFrame(c *fiber.Ctx) error {
	if h.preview == nil {
		return fiber.NewError(fiber.StatusNotFound, "camera preview is not enabled")
	}
	img, at, stream, ok := h.preview.Latest()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no camera frame available")
	}
	c.Set("X-Stream-Id", stream)
	c.Set(fiber.HeaderLastModified, at.UTC().Format(time.RFC1123))
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("jpg")
	return jpeg.Encode(c, img, &jpeg.Options{Quality: 80})
}

// ListAnnotations returns the session annotations in capture order.
func (h *Handler) ListAnnotations(c *fiber.Ctx) error {
	return h.respond(c, commands.AnnotationList)
}

// NearbyAnnotations returns annotations near ?lat=&lng=, within ?radius= meters.
// With ?remote=true the backend's stored scribbles are included.
func (h *Handler) NearbyAnnotations(c *fiber.Ctx) error {
	lat, lng := c.Query("lat"), c.Query("lng")
	if lat == "" || lng == "" {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lng are required")
	}
	args := []string{lat, lng}
	if radius := c.Query("radius"); radius != "" {
		args = append(args, radius)
	}
	if c.QueryBool("remote") {
		args = append(args, commands.RemoteFlag)
	}
	return h.respond(c, commands.AnnotationNearby, args...)
}

// SubmitRequest is the caption sent with an upload.
type SubmitRequest struct {
	Text string `json:"text"`
}

// SubmitAnnotation uploads an annotation to the backend.
func (h *Handler) SubmitAnnotation(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return h.respond(c, commands.AnnotationSubmit, c.Params("id"), req.Text)
}

// SearchRequest is a heatmap query.
type SearchRequest struct {
	Query string `json:"query"`
}

// Search refreshes the heatmap from the backend.
func (h *Handler) Search(c *fiber.Ctx) error {
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return h.respond(c, commands.SearchQuery, req.Query)
}

// ResetSearch resets the backend query and clears the heatmap.
func (h *Handler) ResetSearch(c *fiber.Ctx) error {
	return h.respond(c, commands.SearchReset)
}

// ShowAll fills the heatmap with every scribble the backend stores.
func (h *Handler) ShowAll(c *fiber.Ctx) error {
	return h.respond(c, commands.SearchAll)
}

// ResetSession drops every session annotation and marker.
func (h *Handler) ResetSession(c *fiber.Ctx) error {
	return h.respond(c, commands.SessionReset)
}

// OverlayResponse is the recorded map state with GeoJSON layers.
type OverlayResponse struct {
	Markers  json.RawMessage `json:"markers"`
	Heatmap  json.RawMessage `json:"heatmap"`
	Camera   *overlay.Camera `json:"camera,omitempty"`
	Disposed bool            `json:"disposed"`
}

// GetOverlay returns the markers and heatmap currently shown on the map.
func (h *Handler) GetOverlay(c *fiber.Ctx) error {
	if h.overlay == nil {
		return fiber.NewError(fiber.StatusNotFound, "overlay is not recorded")
	}
	v := h.overlay.View()
	markers, err := v.MarkersGeoJSON()
	if err != nil {
		return err
	}
	heatmap, err := v.Heatmap.MarshalGeoJSON()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": OverlayResponse{
			Markers:  markers,
			Heatmap:  heatmap,
			Camera:   v.Camera,
			Disposed: v.Disposed,
		},
	})
}
