package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/scribblemap/arcapture/internal/dispatcher"
)

// Step is one scripted input. Either Line ("stroke:begin 10 20") or
// Command plus Args is set. Wait pauses before the step runs.
type Step struct {
	Line            string   `json:"line,omitempty"`
	Command         string   `json:"command,omitempty"`
	Args            []string `json:"args,omitempty"`
	Wait            Duration `json:"wait,omitempty"`
	ContinueOnError bool     `json:"continueOnError,omitempty"`
}

// Duration decodes "250ms"-style strings.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Script is a replay file.
type Script struct {
	Steps []Step `json:"steps"`
}

// event converts a step into a dispatcher event.
func (s Step) event() (dispatcher.Event, error) {
	if s.Line != "" {
		return dispatcher.ParseLine(s.Line, "replay")
	}
	if s.Command == "" {
		return dispatcher.Event{}, errors.New("step has neither line nor command")
	}
	return dispatcher.Event{Command: s.Command, Args: s.Args, Source: "replay", Timestamp: time.Now()}, nil
}

// LoadScript decodes a replay script and checks every step parses.
func LoadScript(r io.Reader) (Script, error) {
	var sc Script
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil {
		return Script{}, fmt.Errorf("decoding script: %w", err)
	}
	for i, s := range sc.Steps {
		if _, err := s.event(); err != nil {
			return Script{}, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return sc, nil
}

// StepResult is printed for every executed step.
type StepResult struct {
	Step    int    `json:"step"`
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher is what the replay drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, e dispatcher.Event) (any, error)
}

// RunScript executes the steps in order, writing one JSON result per line
// to out. It stops at the first failing step unless the step allows errors.
func RunScript(ctx context.Context, d Dispatcher, sc Script, out io.Writer) error {
	enc := json.NewEncoder(out)
	for i, s := range sc.Steps {
		if s.Wait > 0 {
			select {
			case <-time.After(time.Duration(s.Wait)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		e, err := s.event()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		result, err := d.Dispatch(ctx, e)

		res := StepResult{Step: i, Command: e.Command, Result: result}
		if err != nil {
			res.Error = err.Error()
		}
		if encErr := enc.Encode(res); encErr != nil {
			return fmt.Errorf("writing result: %w", encErr)
		}
		if err != nil && !s.ContinueOnError {
			return fmt.Errorf("step %d (%s): %w", i, e.Command, err)
		}
	}
	return nil
}

func replayFile(ctx context.Context, d Dispatcher, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()

	sc, err := LoadScript(f)
	if err != nil {
		return err
	}
	Logger.Info("Replaying script", "path", path, "steps", len(sc.Steps))
	return RunScript(ctx, d, sc, out)
}
