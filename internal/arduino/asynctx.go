package arduino

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/wuspy/turretd/internal/turret"
)

// ErrTxOverflow is returned when the writer's internal buffer is full.
var ErrTxOverflow = errors.New("arduino tx overflow")

// asyncTx funnels all serial writes through one goroutine, generalized
// from the teacher's internal/transport.AsyncTx (there specialized to
// can.Frame) to turret.Command. Non-blocking enqueue: a full buffer drops
// the command and reports overflow rather than stalling the producer.
type asyncTx struct {
	mu     sync.Mutex
	ch     chan turret.Command
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(turret.Command) error
	onErr  func(error)
	onSent func()
	closed atomic.Bool
}

func newAsyncTx(parent context.Context, buf int, send func(turret.Command) error, onErr func(error), onSent func()) *asyncTx {
	ctx, cancel := context.WithCancel(parent)
	a := &asyncTx{
		ch:     make(chan turret.Command, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		onErr:  onErr,
		onSent: onSent,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *asyncTx) loop() {
	defer a.wg.Done()
	for {
		select {
		case cmd, ok := <-a.ch:
			if !ok {
				return
			}
			if err := a.send(cmd); err != nil {
				if a.onErr != nil {
					a.onErr(err)
				}
				// A failed write is fatal (§4.3): stop accepting further
				// commands rather than risk silently losing more of them
				// on a port that has already faulted.
				return
			}
			if a.onSent != nil {
				a.onSent()
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// SendCommand queues a command for asynchronous write, or returns
// ErrTxOverflow if the buffer is full.
func (a *asyncTx) SendCommand(cmd turret.Command) error {
	if a.closed.Load() {
		return ErrTxOverflow
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrTxOverflow
	}
	select {
	case a.ch <- cmd:
		return nil
	default:
		return ErrTxOverflow
	}
}

// Close stops the writer and waits for the goroutine to exit.
func (a *asyncTx) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
