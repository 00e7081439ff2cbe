// Package supervisor generalizes the restart-on-error loop the teacher
// inlines per-backend in cmd/can-server (backend_serial.go's serial RX
// loop, backend_socketcan.go's analogous loop) into a single reusable
// shape that any long-running component can use: run a factory function,
// and if it ever returns a non-nil error, log it, wait a fixed backoff,
// and run it again. Unlike the teacher's doubling 20ms-500ms backoff
// (appropriate for a transient read error inside an already-open serial
// port), a supervised component failure here usually means the whole
// component needs to be torn down and rebuilt (reopen the serial device,
// rebind the listener, reinitialize the GStreamer pipeline), so a single
// fixed delay is used instead of exponential growth.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/wuspy/turretd/internal/bus"
)

// DefaultBackoff is the fixed delay between restart attempts.
const DefaultBackoff = 5 * time.Second

// Factory is a supervised unit of work. It must return promptly when ctx
// is canceled; any other return value (nil or non-nil) is treated as the
// component having exited and is subject to restart.
type Factory func(ctx context.Context) error

// Supervisor restarts a Factory on a fixed backoff until ctx is canceled.
// If Bus is set, Run also subscribes to it and discards everything it
// receives for the supervisor's own lifetime (§4.2): a component that is
// mid-restart, or hasn't subscribed yet on first start, must never stall
// a producer's Bus.Send by leaving a gap in the fan-out.
type Supervisor struct {
	Name    string
	Backoff time.Duration
	Logger  *slog.Logger
	Bus     *bus.Bus
}

// New creates a Supervisor with DefaultBackoff.
func New(name string, logger *slog.Logger) *Supervisor {
	return &Supervisor{Name: name, Backoff: DefaultBackoff, Logger: logger}
}

// WithBus sets the bus this supervisor drains for the whole of Run (across
// every restart of its factory), returning s for chaining at the call site.
func (s *Supervisor) WithBus(b *bus.Bus) *Supervisor {
	s.Bus = b
	return s
}

// Run calls factory repeatedly until ctx is canceled. It returns only
// once ctx.Done() fires; errors from factory are logged, never returned.
func (s *Supervisor) Run(ctx context.Context, factory Factory) {
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	if s.Bus != nil {
		sub := s.Bus.Subscribe()
		defer s.Bus.Unsubscribe(sub)
		go drain(ctx, sub)
	}

	for {
		if ctx.Err() != nil {
			return
		}
		err := factory(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.Logger.Error("component_error", "component", s.Name, "error", err, "restart_in", backoff)
		} else {
			s.Logger.Warn("component_exited", "component", s.Name, "restart_in", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// drain discards messages from sub until ctx is canceled, keeping a
// restarting component's own subscription from ever backing up and
// tripping the bus's drop-the-lagging-subscriber policy.
func drain(ctx context.Context, sub *bus.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Messages():
			if !ok {
				return
			}
		}
	}
}
