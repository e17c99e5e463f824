// Command scribblemap runs the AR capture controller behind an HTTP API
// (serve) or drives it from a scripted input file (replay).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/scribblemap/arcapture/internal/annotation"
	"github.com/scribblemap/arcapture/internal/api"
	"github.com/scribblemap/arcapture/internal/camera"
	"github.com/scribblemap/arcapture/internal/capture"
	"github.com/scribblemap/arcapture/internal/commands"
	"github.com/scribblemap/arcapture/internal/config"
	httpdelivery "github.com/scribblemap/arcapture/internal/delivery/http"
	"github.com/scribblemap/arcapture/internal/dispatcher"
	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/logging"
	"github.com/scribblemap/arcapture/internal/monitor"
	"github.com/scribblemap/arcapture/internal/otel"
	"github.com/scribblemap/arcapture/internal/telemetry"
)

const ServiceName = "scribblemap"

var (
	// Version is set at build time.
	Version = "dev"

	SessionStart = time.Now()

	Logger       *slog.Logger
	SlogManager  *logging.SlogManager
	OTelProvider *otel.Provider
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment")
	}

	args := os.Args[1:]
	mode := "serve"
	if len(args) > 0 {
		mode, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, mode, args); err != nil {
		if Logger != nil {
			Logger.Error("Exiting", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// app holds everything the modes share.
type app struct {
	controller *capture.Controller
	dispatcher *dispatcher.Dispatcher
	recorder   httpdelivery.OverlayViewer
	preview    *camera.Preview
	closers    []func(context.Context) error
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			Logger.Warn("Shutdown step failed", "error", err)
		}
	}
}

func run(ctx context.Context, mode string, args []string) error {
	switch mode {
	case "serve", "replay":
	default:
		return fmt.Errorf("unknown mode %q (expected serve or replay <script.json>)", mode)
	}
	if mode == "replay" && len(args) != 1 {
		return errors.New("replay needs exactly one script path")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if mode == "replay" {
		return replayFile(ctx, a.dispatcher, args[0], os.Stdout)
	}
	return serve(ctx, a)
}

func setupLogging(controller *atomic.Pointer[capture.Controller]) (io.Writer, []func(context.Context) error, error) {
	var closers []func(context.Context) error

	logsDir := cfgString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, ServiceName, SessionStart)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	closers = append(closers, func(context.Context) error { return logFile.Close() })
	var sink io.Writer = io.MultiWriter(os.Stdout, logFile)

	otelCfg := config.GetOTelConfig()
	var otelFile io.Writer
	if otelCfg.Enabled {
		f, err := os.OpenFile(logging.LogFilePath(logsDir, ServiceName+".otel", SessionStart),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening otel log file: %w", err)
		}
		otelFile = f
		closers = append(closers, func(context.Context) error { return f.Close() })
	}
	OTelProvider, err = otel.New(otel.ConfigFrom(otelCfg, otelFile))
	if err != nil {
		return nil, nil, fmt.Errorf("setting up otel: %w", err)
	}
	closers = append(closers, OTelProvider.Shutdown)

	opts := []logging.Option{
		logging.WithContext(func() []slog.Attr {
			if c := controller.Load(); c != nil {
				return c.LogAttrs()
			}
			return nil
		}),
	}
	if config.GetBool("graylog.enabled") {
		gw, err := logging.NewGraylogWriter(cfgString("graylog.address"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "Graylog disabled:", err)
		} else {
			opts = append(opts, logging.WithGraylog(gw))
			closers = append(closers, func(context.Context) error { return gw.Close() })
		}
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(sink, cfgString("logLevel"), OTelProvider.LoggerProvider(), opts...)
	Logger = SlogManager.Logger()
	closers = append(closers, SlogManager.Flush)
	Logger.Info("Log file opened", "path", logPath, "version", Version)

	return logFile, closers, nil
}

func cfgString(key string) string { return config.GetString(key) }

func setup(ctx context.Context) (*app, error) {
	configErr := config.Load(configDir())

	var current atomic.Pointer[capture.Controller]
	logFile, closers, err := setupLogging(&current)
	if err != nil {
		return nil, err
	}
	a := &app{closers: closers}
	if configErr != nil {
		Logger.Warn("Failed to load config, using defaults", "error", configErr)
	}

	zl := logging.NewZerolog(logFile, cfgString("logLevel"))

	store, err := annotation.NewStore(config.GetStorageConfig(), zl.With().Str("component", "store").Logger())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating annotation store: %w", err)
	}

	preview := camera.NewPreview()
	a.preview = preview
	feed, err := createCameraFeed(config.GetCameraConfig(), preview.Push, Logger)
	if err != nil {
		a.close()
		return nil, err
	}

	captureCfg := config.GetCaptureConfig()
	sensor, err := createLocationSensor(config.GetLocationConfig(), captureCfg.LocationTimeout, Logger)
	if err != nil {
		a.close()
		return nil, err
	}

	renderer, recorder, err := createRenderer(config.GetOverlayConfig(), Logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.recorder = recorder

	apiCfg := config.GetAPIConfig()
	backend := api.New(apiCfg.ServerURL, apiCfg.APIKey, apiCfg.Timeout)
	go healthcheck(ctx, backend, Logger)

	ctrl := capture.New(feed, sensor,
		drawing.NewSurface(drawing.Style{Width: captureCfg.StrokeWidth, Color: captureCfg.StrokeColor}),
		store, renderer,
		capture.WithConfig(capture.ConfigFrom(captureCfg, config.GetLocationConfig(), config.GetFloat("search.weight"))),
		capture.WithLogger(Logger.With("component", "capture")),
		capture.WithBackend(backend),
		capture.WithVideoOutput(preview),
	)
	current.Store(ctrl)
	a.controller = ctrl
	if config.GetBool("search.seedOnStart") {
		go seedHeatmap(ctx, ctrl, Logger)
	}

	ctrl.OnSessionEnded(func(r capture.SessionReport) {
		Logger.Info("Capture session ended",
			"session", r.SessionID, "outcome", string(r.Outcome),
			"strokes", r.Strokes, "duration", r.Duration())
	})

	if tm := setupTelemetry(ctx, zl); tm != nil {
		detach := tm.Attach(ctrl)
		a.closers = append(a.closers, func(context.Context) error {
			detach()
			return tm.Close()
		})
	}
	// disposed before telemetry detaches so the final session is recorded
	a.closers = append(a.closers, ctrl.Dispose)

	d, err := dispatcher.New(Logger.With("component", "dispatcher"))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	commands.Register(d, ctrl)
	a.dispatcher = d
	a.closers = append(a.closers, func(context.Context) error {
		d.Close()
		return nil
	})

	if config.GetBool("monitor.enabled") {
		mon := monitor.NewService(monitor.Dependencies{
			Controller: ctrl,
			Commands:   d,
			Logger:     Logger.With("component", "monitor"),
			StatusPath: filepath.Join(cfgString("logsDir"), "status.json"),
			Interval:   config.GetDuration("monitor.interval"),
		}, Version)
		if err := mon.Start(ctx); err != nil {
			Logger.Warn("Status monitor not started", "error", err)
		} else {
			a.closers = append(a.closers, func(context.Context) error {
				mon.Stop()
				return nil
			})
		}
	}

	Logger.Info("Controller ready", "commands", d.Commands())
	return a, nil
}

func setupTelemetry(ctx context.Context, zl zerolog.Logger) *telemetry.Manager {
	tm := telemetry.NewManager(config.GetInfluxConfig(), zl.With().Str("component", "telemetry").Logger())
	if err := tm.Connect(ctx); err != nil {
		if !errors.Is(err, telemetry.ErrDisabled) {
			Logger.Warn("Telemetry unavailable", "error", err)
		}
		return nil
	}
	return tm
}

func serve(ctx context.Context, a *app) error {
	server := httpdelivery.NewApp()
	httpdelivery.SetupRoutes(server, httpdelivery.NewHandler(a.dispatcher, a.recorder, Version).WithPreview(a.preview))

	port := cfgString("server.port")
	errCh := make(chan error, 1)
	go func() {
		Logger.Info("Server starting", "port", port)
		errCh <- server.Listen(":" + port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	Logger.Info("Shutting down server...")
	if err := server.ShutdownWithTimeout(5 * time.Second); err != nil {
		Logger.Warn("Server forced to shutdown", "error", err)
	}
	return nil
}

// configDir is the directory holding the config file: SCRIBBLE_CONFIG_DIR,
// else the working directory if it has one, else the executable's directory.
func configDir() string {
	if dir := os.Getenv("SCRIBBLE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if _, err := os.Stat(config.FileName); err == nil {
		return "."
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	return "."
}
