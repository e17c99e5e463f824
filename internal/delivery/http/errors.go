package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/scribblemap/arcapture/internal/api"
	"github.com/scribblemap/arcapture/internal/camera"
	"github.com/scribblemap/arcapture/internal/capture"
	"github.com/scribblemap/arcapture/internal/commands"
	"github.com/scribblemap/arcapture/internal/dispatcher"
	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/geo"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, commands.ErrBadArguments),
		errors.Is(err, geo.ErrInvalidCoordinates),
		errors.Is(err, drawing.ErrInvalidViewport):
		return fiber.StatusBadRequest
	case errors.Is(err, capture.ErrNoAnnotation),
		errors.Is(err, dispatcher.ErrUnknownCommand):
		return fiber.StatusNotFound
	case errors.Is(err, camera.ErrCameraUnavailable),
		errors.Is(err, capture.ErrDisposed),
		errors.Is(err, capture.ErrNoBackend),
		errors.Is(err, dispatcher.ErrClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, api.ErrSearchFailed),
		errors.Is(err, api.ErrUploadFailed),
		errors.Is(err, api.ErrResetFailed),
		errors.Is(err, api.ErrPingFailed),
		errors.Is(err, api.ErrListFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
