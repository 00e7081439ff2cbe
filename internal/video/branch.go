package video

import (
	"fmt"

	"github.com/go-gst/go-gst/gst"

	"github.com/wuspy/turretd/internal/metrics"
	"github.com/wuspy/turretd/internal/turret"
)

// branch is one client's queue->udpsink pair, hung off the shared tee.
type branch struct {
	queue *gst.Element
	sink  *gst.Element
}

// attach performs the graph surgery described by §4.5 step 2: create
// queue_<addr>/sink_<addr>, configure the sink's bind/destination
// properties, add both to the running pipeline, link tee->queue->sink,
// and set both Playing.
func (p *Pipeline) attach(addr turret.Endpoint, serverIP string, serverPort int, clientIP string, clientPort int) error {
	name := addr.Key()

	queue, err := gst.NewElement("queue", "queue_"+name)
	if err != nil {
		return fmt.Errorf("%w: queue element: %v", ErrBranchAttach, err)
	}
	sink, err := gst.NewElement("udpsink", "sink_"+name)
	if err != nil {
		return fmt.Errorf("%w: udpsink element: %v", ErrBranchAttach, err)
	}

	sink.SetProperty("async", false)
	sink.SetProperty("bind-address", serverIP)
	sink.SetProperty("bind-port", serverPort)
	sink.SetProperty("host", clientIP)
	sink.SetProperty("port", clientPort)

	if err := p.pipeline.Add(queue, sink); err != nil {
		return fmt.Errorf("%w: add elements: %v", ErrBranchAttach, err)
	}
	if err := p.tee.Link(queue); err != nil {
		return fmt.Errorf("%w: link tee->queue: %v", ErrBranchAttach, err)
	}
	if err := queue.Link(sink); err != nil {
		return fmt.Errorf("%w: link queue->sink: %v", ErrBranchAttach, err)
	}
	if err := queue.SyncStateWithParent(); err != nil {
		return fmt.Errorf("%w: queue state: %v", ErrBranchAttach, err)
	}
	if err := sink.SyncStateWithParent(); err != nil {
		return fmt.Errorf("%w: sink state: %v", ErrBranchAttach, err)
	}

	p.mu.Lock()
	p.branches[name] = &branch{queue: queue, sink: sink}
	p.mu.Unlock()
	return nil
}

// detach tears a branch down, tolerating a missing branch (no-op) so
// ClientDisconnected can race a failed handshake without error.
func (p *Pipeline) detach(addr turret.Endpoint) {
	name := addr.Key()
	p.mu.Lock()
	b, ok := p.branches[name]
	if ok {
		delete(p.branches, name)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	b.queue.SetState(gst.StateNull)
	b.sink.SetState(gst.StateNull)
	b.queue.Unlink(b.sink)
	p.tee.Unlink(b.queue)
	_ = p.pipeline.Remove(b.queue, b.sink)

	p.mu.Lock()
	n := len(p.branches)
	p.mu.Unlock()
	metrics.SetVideoBranches(n)
}
