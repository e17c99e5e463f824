package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/scribblemap/arcapture/internal/capture"
)

// StatusSource is the part of the capture controller the monitor reads.
type StatusSource interface {
	State() capture.State
	Session() (capture.SessionInfo, bool)
	Markers() int
}

// CommandLister reports the registered control commands.
type CommandLister interface {
	Commands() []string
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Controller StatusSource
	Commands   CommandLister
	Logger     *slog.Logger
	StatusPath string
	Interval   time.Duration
}

// Status is one snapshot written to the status file.
type Status struct {
	Time     time.Time            `json:"time"`
	Version  string               `json:"version,omitempty"`
	State    capture.State        `json:"state"`
	Session  *capture.SessionInfo `json:"session"`
	Markers  int                  `json:"markers"`
	Commands []string             `json:"commands,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	version   string
	now       func() time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies, version string) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:    deps,
		version: version,
		now:     time.Now,
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current controller status.
func (s *Service) GetStatus() Status {
	st := Status{
		Time:    s.now(),
		Version: s.version,
		State:   s.deps.Controller.State(),
		Markers: s.deps.Controller.Markers(),
	}
	if info, ok := s.deps.Controller.Session(); ok {
		st.Session = &info
	}
	if s.deps.Commands != nil {
		st.Commands = s.deps.Commands.Commands()
	}
	return st
}

// WriteStatus overwrites the status file with the current snapshot.
func (s *Service) WriteStatus() error {
	b, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	tmp := s.deps.StatusPath + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	return os.Rename(tmp, s.deps.StatusPath)
}

// Start starts the status monitor goroutine. It stops on Stop or when ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.Controller == nil || s.deps.StatusPath == "" {
		s.mu.Unlock()
		return fmt.Errorf("monitor needs a controller and a status path")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "path", s.deps.StatusPath, "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		failing := false
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					// log the first failure of a run only
					if !failing {
						logger.Error("Error writing status file", "error", err)
					}
					failing = true
					continue
				}
				failing = false
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for its goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
