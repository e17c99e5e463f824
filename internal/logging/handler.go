package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// AttrsFunc reports attributes that change while the process runs, such as
// the capture state and the open session.
type AttrsFunc func() []slog.Attr

// fanout writes each record to every sink enabled for its level. Attributes
// from live are evaluated once per record and land in the innermost group.
type fanout struct {
	sinks []slog.Handler
	live  AttrsFunc
}

func newFanout(live AttrsFunc, sinks ...slog.Handler) *fanout {
	f := &fanout{live: live}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(f.sinks, func(s slog.Handler) bool {
		return s.Enabled(ctx, level)
	})
}

// Handle keeps going after a sink fails and reports every failure.
func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	if f.live != nil {
		r.AddAttrs(f.live()...)
	}
	var errs []error
	for _, s := range f.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return f
	}
	return f.derive(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (f *fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (f *fanout) derive(fn func(slog.Handler) slog.Handler) *fanout {
	out := &fanout{sinks: make([]slog.Handler, len(f.sinks)), live: f.live}
	for i, s := range f.sinks {
		out.sinks[i] = fn(s)
	}
	return out
}
