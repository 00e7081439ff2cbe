// Package bus implements the in-process broadcast channel that carries
// turret.Message values between the Arduino link, the control server and
// the video pipeline. It generalizes the teacher's CAN-frame hub
// (internal/hub.Hub in go-ampio-server) from a single fixed frame type to
// the turret's Message envelope, and from a single backpressure policy to
// the spec's "drop the lagging subscriber" failure semantics (§4.1: "a
// full/closed downstream enqueue is logged and the per-clone queue is
// dropped, but other clones proceed").
package bus

import (
	"sync"

	"github.com/wuspy/turretd/internal/logging"
	"github.com/wuspy/turretd/internal/metrics"
	"github.com/wuspy/turretd/internal/turret"
)

// defaultBufSize bounds each subscriber's queue. The design assumes
// per-consumer queues stay small because every consumer drains eagerly;
// this is large enough to absorb bursts without ever being read as a
// backpressure mechanism.
const defaultBufSize = 256

// Subscriber is one registered receiver. Close is idempotent.
type Subscriber struct {
	ch        chan turret.Message
	closed    chan struct{}
	closeOnce sync.Once
}

// Messages returns the channel of messages fanned out to this subscriber.
func (s *Subscriber) Messages() <-chan turret.Message { return s.ch }

// Close unregisters nothing by itself — callers must also call
// Bus.Unsubscribe — but it does stop future sends from blocking on a
// consumer that has walked away.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Subscriber) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Bus is a clone-capable broadcast channel of turret.Message values.
// Send never blocks producers: a subscriber whose queue is full is
// logged and dropped (not merely the one message), matching §4.1.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

// New creates an empty Bus.
func New() *Bus { return &Bus{subs: make(map[*Subscriber]struct{})} }

// Subscribe registers a new subscriber and returns it. Only messages sent
// after Subscribe returns are delivered to it; there is no replay.
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan turret.Message, defaultBufSize), closed: make(chan struct{})}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	metrics.SetBusSubscribers(b.Count())
	return s
}

// Unsubscribe removes a subscriber. Safe to call multiple times.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	_, existed := b.subs[s]
	if existed {
		delete(b.subs, s)
	}
	n := len(b.subs)
	b.mu.Unlock()
	if existed {
		s.Close()
		metrics.SetBusSubscribers(n)
	}
}

// Count returns the number of live subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return n
}

// snapshot returns a slice copy of current subscribers for lock-free fan-out.
func (b *Bus) snapshot() []*Subscriber {
	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()
	return subs
}

// Send fans a message out to every live subscriber. It never blocks: a
// subscriber whose queue is already full is logged, counted and
// unsubscribed on the spot (it receives nothing further) — the sender does
// not wait for it.
func (b *Bus) Send(msg turret.Message) {
	for _, s := range b.snapshot() {
		if s.isClosed() {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			logging.L().Warn("bus_subscriber_overflow", "source", msg.Source.Kind.String())
			metrics.IncBusDrop()
			b.Unsubscribe(s)
		}
	}
}
