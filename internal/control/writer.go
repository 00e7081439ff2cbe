package control

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/wuspy/turretd/internal/metrics"
)

// startWriter launches the single goroutine draining a client's outbound
// proxy into its socket (§4.4: "a single task drains into the socket
// writer"). Unlike the teacher's batched/ticker-flushed writer, hardware
// status must not wait behind a flush interval, so every line is written
// as soon as it is enqueued.
func (s *Server) startWriter(conn net.Conn, h *connHandle, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case line := <-h.client.Out:
				if _, err := conn.Write(line); err != nil {
					wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
					logger.Warn("control_write_error", "error", wrap)
					h.teardown(s)
					return
				}
				metrics.IncTCPTx()
			case <-h.client.Closed():
				return
			case <-s.ctxDone:
				return
			}
		}
	}()
}
