package control

import (
	"log/slog"
	"net"
	"time"

	"github.com/wuspy/turretd/internal/metrics"
)

// watchdogTick and watchdogTimeout match §4.4/§5 exactly: a 1s tick
// checking for 3s of inactivity.
const (
	watchdogTick    = time.Second
	watchdogTimeout = 3 * time.Second
)

// startWatchdog evicts a client after watchdogTimeout of inactivity. It
// terminates on its own once the client is no longer in the queue,
// matching §4.4's "if the client is no longer in the queue, terminate the
// watchdog task".
func (s *Server) startWatchdog(conn net.Conn, h *connHandle, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(watchdogTick)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if s.queue.IndexOf(h.client) < 0 {
					return
				}
				if h.client.IdleFor(time.Now()) >= watchdogTimeout {
					metrics.IncWatchdogEviction()
					logger.Warn("control_watchdog_evict", "idle", h.client.IdleFor(time.Now()))
					h.teardown(s)
					return
				}
			case <-h.client.Closed():
				return
			case <-s.ctxDone:
				return
			}
		}
	}()
}
