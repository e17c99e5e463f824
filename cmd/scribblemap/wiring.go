package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scribblemap/arcapture/internal/camera"
	"github.com/scribblemap/arcapture/internal/camera/device"
	"github.com/scribblemap/arcapture/internal/capture"
	"github.com/scribblemap/arcapture/internal/config"
	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/location"
	"github.com/scribblemap/arcapture/internal/overlay"
	wsoverlay "github.com/scribblemap/arcapture/internal/overlay/websocket"
)

// createCameraFeed builds the configured feed. Device frames are pushed to
// sink, which may be nil.
func createCameraFeed(cfg config.CameraConfig, sink device.FrameSink, logger *slog.Logger) (camera.Feed, error) {
	switch cfg.Type {
	case "device", "":
		logger.Info("Using device camera", "device", cfg.Device)
		return device.New(device.Config{
			Devices: map[camera.Facing]int{camera.FacingEnvironment: cfg.Device},
			Sink:    sink,
		}, logger), nil
	case "simulated":
		logger.Info("Using simulated camera")
		return camera.NewSimulated(), nil
	default:
		return nil, fmt.Errorf("unknown camera type: %s", cfg.Type)
	}
}

func createLocationSensor(cfg config.LocationConfig, timeout time.Duration, logger *slog.Logger) (location.Sensor, error) {
	switch cfg.Type {
	case "static", "":
		coord, err := geo.NewCoordinate(cfg.Latitude, cfg.Longitude)
		if err != nil {
			return nil, fmt.Errorf("static location: %w", err)
		}
		logger.Info("Using static location", "coordinate", coord.String())
		return location.Static{Coordinate: coord}, nil
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("location.url is required for http location")
		}
		logger.Info("Using HTTP location", "url", cfg.URL)
		return location.NewHTTPSensor(cfg.URL, timeout), nil
	default:
		return nil, fmt.Errorf("unknown location type: %s", cfg.Type)
	}
}

// createRenderer always records the overlay in-process so the HTTP surface
// can report it. A websocket client, when configured, mirrors it.
func createRenderer(cfg config.OverlayConfig, logger *slog.Logger) (overlay.Renderer, *overlay.Recorder, error) {
	rec := overlay.NewRecorder()

	switch cfg.Type {
	case "recording", "":
		return rec, rec, nil
	case "websocket":
		if cfg.URL == "" {
			return nil, nil, fmt.Errorf("overlay.url is required for websocket overlay")
		}
		ws := wsoverlay.New(wsoverlay.Config{URL: cfg.URL, Secret: cfg.Secret}, logger.With("component", "overlay"))
		if err := ws.Init(); err != nil {
			logger.Warn("Map client unreachable, overlay is recorded only", "url", cfg.URL, "error", err)
			return rec, rec, nil
		}
		multi := overlay.NewMulti(rec, ws)
		multi.OnMirrorError = func(op string, err error) {
			logger.Warn("Map client update failed", "op", op, "error", err)
		}
		logger.Info("Streaming overlay to map client", "url", cfg.URL, "session", ws.Session())
		return multi, rec, nil
	default:
		return nil, nil, fmt.Errorf("unknown overlay type: %s", cfg.Type)
	}
}

// healthcheck logs whether the scribble backend answers. It never blocks startup.
func healthcheck(ctx context.Context, hc interface{ Healthcheck(context.Context) error }, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := hc.Healthcheck(ctx); err != nil {
		logger.Warn("Scribble backend healthcheck failed", "error", err)
		return
	}
	logger.Info("Scribble backend reachable")
}

// seedHeatmap shows every stored scribble on the map once at startup.
func seedHeatmap(ctx context.Context, s interface {
	ShowAll(context.Context) (capture.SearchResult, error)
}, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := s.ShowAll(ctx)
	if err != nil {
		logger.Warn("Heatmap not seeded", "error", err)
		return
	}
	logger.Info("Heatmap seeded", "points", res.Points, "skipped", res.Skipped)
}
