package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wuspy/turretd/internal/bus"
	"github.com/wuspy/turretd/internal/logging"
	"github.com/wuspy/turretd/internal/turret"
)

func TestSupervisor_RestartsOnError(t *testing.T) {
	s := New("test", logging.L())
	s.Backoff = 10 * time.Millisecond

	var calls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	s.Run(ctx, func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("boom")
	})

	if n := calls.Load(); n < 2 {
		t.Fatalf("expected at least 2 factory calls (one restart), got %d", n)
	}
}

func TestSupervisor_StopsOnContextCancel(t *testing.T) {
	s := New("test", logging.L())
	s.Backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestSupervisor_RunWithUnsetBackoffReturnsOnCanceledContext(t *testing.T) {
	s := &Supervisor{Name: "no-backoff-set", Logger: logging.L()}
	if s.Backoff != 0 {
		t.Fatalf("expected zero-value Backoff before Run normalizes it")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx, func(ctx context.Context) error { return nil }) // should return immediately, ctx already canceled
}

// TestSupervisor_DrainsBusDuringRestart exercises the supervisor's bus
// drain (§4.2): it sends on the bus continuously while the factory fails
// once and is restarted, and checks that Run still returns once ctx times
// out.
func TestSupervisor_DrainsBusDuringRestart(t *testing.T) {
	b := bus.New()
	s := New("test", logging.L()).WithBus(b)
	s.Backoff = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		s.Run(ctx, func(ctx context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("boom")
			}
			<-ctx.Done()
			return ctx.Err()
		})
		close(done)
	}()

	for i := 0; i < 50; i++ {
		b.Send(turret.Message{Source: turret.FromArduino()})
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context timeout")
	}
}
