package control

import (
	"net"
	"testing"
	"time"

	"github.com/wuspy/turretd/internal/turret"
)

func endpoint(port int) turret.Endpoint {
	return turret.Endpoint{IP: net.ParseIP("127.0.0.1"), Port: port}
}

func TestQueue_EnqueueAssignsContiguousPositions(t *testing.T) {
	q := NewQueue()
	a := newClient(endpoint(1))
	b := newClient(endpoint(2))
	c := newClient(endpoint(3))

	if pos := q.Enqueue(a); pos != 0 {
		t.Fatalf("expected position 0, got %d", pos)
	}
	if pos := q.Enqueue(b); pos != 1 {
		t.Fatalf("expected position 1, got %d", pos)
	}
	q.Enqueue(c)

	if q.IndexOf(a) != 0 || q.IndexOf(b) != 1 || q.IndexOf(c) != 2 {
		t.Fatalf("unexpected positions: a=%d b=%d c=%d", q.IndexOf(a), q.IndexOf(b), q.IndexOf(c))
	}
}

func TestQueue_RemoveReindexesRemainingMembers(t *testing.T) {
	q := NewQueue()
	a := newClient(endpoint(1))
	b := newClient(endpoint(2))
	c := newClient(endpoint(3))
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	if !q.Remove(a) {
		t.Fatal("expected Remove(a) to report true")
	}
	if q.IndexOf(b) != 0 || q.IndexOf(c) != 1 {
		t.Fatalf("expected b,c to shift down: b=%d c=%d", q.IndexOf(b), q.IndexOf(c))
	}
	if q.IndexOf(a) != -1 {
		t.Fatalf("expected a to be gone, got %d", q.IndexOf(a))
	}
}

func TestQueue_RemoveIsIdempotent(t *testing.T) {
	q := NewQueue()
	a := newClient(endpoint(1))
	q.Enqueue(a)
	if !q.Remove(a) {
		t.Fatal("first Remove should report true")
	}
	if q.Remove(a) {
		t.Fatal("second Remove should report false")
	}
}

func TestQueue_BroadcastStateSendsEachMemberItsOwnPosition(t *testing.T) {
	q := NewQueue()
	a := newClient(endpoint(1))
	b := newClient(endpoint(2))
	q.Enqueue(a)
	q.Enqueue(b)

	q.BroadcastState()

	var aLine, bLine []byte
	select {
	case aLine = <-a.Out:
	default:
		t.Fatal("a did not receive a queue_state line")
	}
	select {
	case bLine = <-b.Out:
	default:
		t.Fatal("b did not receive a queue_state line")
	}

	wantA := EncodeQueueState(0, 2)
	wantB := EncodeQueueState(1, 2)
	if string(aLine) != string(wantA) {
		t.Fatalf("a: got %q want %q", aLine, wantA)
	}
	if string(bLine) != string(wantB) {
		t.Fatalf("b: got %q want %q", bLine, wantB)
	}
}

func TestQueue_BroadcastStateEvictsFullBuffers(t *testing.T) {
	q := NewQueue()
	a := newClient(endpoint(1))
	q.Enqueue(a)
	for i := 0; i < outboundBufSize; i++ {
		a.Out <- []byte("filler\n")
	}

	q.BroadcastState()

	if q.IndexOf(a) != -1 {
		t.Fatal("expected a to be evicted after a failed enqueue")
	}
	select {
	case <-a.Closed():
	default:
		t.Fatal("expected a to be closed after eviction")
	}
}

func TestClient_IdleForReflectsTouch(t *testing.T) {
	c := newClient(endpoint(1))
	now := time.Now()
	if d := c.IdleFor(now); d < 0 || d > time.Second {
		t.Fatalf("unexpected idle duration right after creation: %s", d)
	}
	past := now.Add(5 * time.Second)
	if d := c.IdleFor(past); d < 4*time.Second {
		t.Fatalf("expected idle duration near 5s, got %s", d)
	}
}

func TestQueue_FindByAddr(t *testing.T) {
	q := NewQueue()
	a := newClient(endpoint(1))
	b := newClient(endpoint(2))
	q.Enqueue(a)
	q.Enqueue(b)

	if q.FindByAddr(endpoint(2)) != b {
		t.Fatal("expected to find b by its address")
	}
	if q.FindByAddr(endpoint(3)) != nil {
		t.Fatal("expected no match for an address not in the queue")
	}
}
