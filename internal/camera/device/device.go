// Package device implements camera.Feed on top of OpenCV video capture.
package device

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/scribblemap/arcapture/internal/camera"
)

// FrameSink receives decoded frames while a stream is live.
type FrameSink func(image.Image)

// Config maps each facing to an OpenCV device index.
type Config struct {
	Devices map[camera.Facing]int
	Sink    FrameSink
}

// Feed opens OpenCV capture devices.
type Feed struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a device-backed feed.
func New(cfg Config, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{cfg: cfg, logger: logger}
}

// Acquire opens the device for facing and starts pumping frames to the sink.
func (f *Feed) Acquire(ctx context.Context, facing camera.Facing) (*camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", camera.ErrCameraUnavailable, err)
	}

	idx, ok := f.cfg.Devices[facing]
	if !ok {
		return nil, fmt.Errorf("%w: facing %q", camera.ErrNoDevice, facing)
	}

	vc, err := gocv.OpenVideoCapture(idx)
	if err != nil {
		return nil, fmt.Errorf("%w: opening device %d: %v", camera.ErrCameraUnavailable, idx, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d", camera.ErrNoDevice, idx)
	}

	track := newVideoTrack(vc, f.cfg.Sink, f.logger.With("device", idx))
	f.logger.Info("camera stream acquired", "device", idx, "facing", facing)
	return camera.NewStream(facing, track), nil
}

// Release stops every track of the stream.
func (f *Feed) Release(s *camera.Stream) error {
	return camera.Release(s)
}

// videoTrack owns one VideoCapture and the goroutine reading from it.
type videoTrack struct {
	vc     *gocv.VideoCapture
	sink   FrameSink
	logger *slog.Logger

	mu     sync.Mutex
	live   bool
	failed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func newVideoTrack(vc *gocv.VideoCapture, sink FrameSink, logger *slog.Logger) *videoTrack {
	t := &videoTrack{
		vc:     vc,
		sink:   sink,
		logger: logger,
		live:   true,
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.pump()
	return t
}

func (t *videoTrack) pump() {
	defer t.wg.Done()

	frame := gocv.NewMat()
	defer frame.Close()

	backoff := newReadBackoff()
	for {
		select {
		case <-t.done:
			return
		default:
		}

		ok := t.vc.Read(&frame) && !frame.Empty()
		wait, retry := backoff.next(ok)
		if !retry {
			t.logger.Error("camera stopped delivering frames", "failures", backoff.failures)
			t.mu.Lock()
			t.failed = true
			t.mu.Unlock()
			return
		}
		if !ok {
			select {
			case <-t.done:
				return
			case <-time.After(wait):
			}
			continue
		}
		if t.sink == nil {
			continue
		}
		img, err := frame.ToImage()
		if err != nil {
			t.logger.Debug("frame conversion failed", "error", err)
			continue
		}
		t.sink(img)
	}
}

func (t *videoTrack) Kind() string { return "video" }

func (t *videoTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live && !t.failed
}

func (t *videoTrack) Stop() error {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return nil
	}
	t.live = false
	close(t.done)
	t.mu.Unlock()

	t.wg.Wait()
	return t.vc.Close()
}
