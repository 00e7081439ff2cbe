package control

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wuspy/turretd/internal/metrics"
	"github.com/wuspy/turretd/internal/turret"
)

// outboundBufSize bounds each client's outbound text proxy (§4.4: "each
// client owns a bounded text stream proxy; all producers push strings to
// it"). It is sized generously — status and queue-state traffic is low
// rate — so that a momentarily slow socket writer does not cause
// producers to observe backpressure.
const outboundBufSize = 64

// Client is one connected control client: its address, queue position
// bookkeeping and its outbound line proxy. Generalized from the teacher's
// hub.Client (there a raw can.Frame channel) to a text-line channel,
// since the control wire is line-delimited JSON rather than binary
// frames.
type Client struct {
	Addr turret.Endpoint

	Out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	lastSeenNano atomic.Int64
}

func newClient(addr turret.Endpoint) *Client {
	c := &Client{Addr: addr, Out: make(chan []byte, outboundBufSize), closed: make(chan struct{})}
	c.Touch(time.Now())
	return c
}

// Touch resets the watchdog clock (§4.4).
func (c *Client) Touch(now time.Time) { c.lastSeenNano.Store(now.UnixNano()) }

// IdleFor reports how long it has been since the last received frame.
func (c *Client) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastSeenNano.Load()))
}

// Close is idempotent; it signals the writer goroutine to stop.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Closed returns the channel closed by Close.
func (c *Client) Closed() <-chan struct{} { return c.closed }

// Enqueue pushes a line to the client's outbound proxy without blocking.
// It reports false (and does not send) if the buffer is full — callers
// should then remove the client per §4.4's "on enqueue error to a
// client's proxy, remove the client from the queue and log".
func (c *Client) Enqueue(line []byte) bool {
	select {
	case c.Out <- line:
		return true
	default:
		return false
	}
}

// Queue is the FIFO of connected control clients. Index 0 is always the
// authoritative client (§3, §4.4). It is protected by a single
// readers-writer lock: Enqueue/Remove take the exclusive side,
// IndexOf/Len/Snapshot/FindByAddr take the shared side, and BroadcastState
// works from a Snapshot — the lock is never held across a suspension
// point (§5).
type Queue struct {
	mu      sync.RWMutex
	members []*Client
}

func NewQueue() *Queue { return &Queue{} }

// Enqueue appends c to the tail and returns its new position.
func (q *Queue) Enqueue(c *Client) int {
	q.mu.Lock()
	q.members = append(q.members, c)
	pos := len(q.members) - 1
	q.mu.Unlock()
	metrics.SetQueueClients(q.Len())
	return pos
}

// Remove deletes c if present, reports whether it was found, and
// preserves contiguous indices for the remaining members.
func (q *Queue) Remove(c *Client) bool {
	q.mu.Lock()
	idx := -1
	for i, m := range q.members {
		if m == c {
			idx = i
			break
		}
	}
	var removed bool
	if idx >= 0 {
		q.members = append(q.members[:idx], q.members[idx+1:]...)
		removed = true
	}
	q.mu.Unlock()
	if removed {
		metrics.SetQueueClients(q.Len())
	}
	return removed
}

// IndexOf returns c's current position, or -1 if it is not a member.
func (q *Queue) IndexOf(c *Client) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for i, m := range q.members {
		if m == c {
			return i
		}
	}
	return -1
}

// Len returns the current cardinality.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.members)
}

// Snapshot returns a slice copy of current members (read-only use),
// mirroring hub.Hub.Snapshot in the teacher.
func (q *Queue) Snapshot() []*Client {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Client, len(q.members))
	copy(out, q.members)
	return out
}

// FindByAddr returns the member with the given address, or nil.
func (q *Queue) FindByAddr(addr turret.Endpoint) *Client {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, m := range q.members {
		if m.Addr.Equal(addr) {
			return m
		}
	}
	return nil
}

// BroadcastState sends every current member its own {queue_position,
// num_clients} line (§3 invariant iv). Called after every Enqueue/Remove.
func (q *Queue) BroadcastState() {
	members := q.Snapshot()
	n := uint32(len(members))
	for i, c := range members {
		line := EncodeQueueState(uint32(i), n)
		if !c.Enqueue(line) {
			q.Remove(c)
			c.Close()
		}
	}
}
