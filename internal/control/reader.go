package control

import (
	"bufio"
	"log/slog"
	"net"
	"time"

	"github.com/wuspy/turretd/internal/metrics"
	"github.com/wuspy/turretd/internal/turret"
)

// maxLineBytes bounds a single JSON request line. The spec leaves lines
// unbounded; implementations may cap — this cap is generous enough never
// to matter for legitimate traffic while bounding a malicious/broken peer.
const maxLineBytes = 1 << 20

func (s *Server) startReader(conn net.Conn, h *connHandle, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 4096), maxLineBytes)
		for scanner.Scan() {
			now := time.Now()
			h.client.Touch(now)
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			content, ok := ParseRequest(line)
			if !ok {
				logger.Warn("control_bad_request", "line", string(line))
				continue
			}
			metrics.IncTCPRx()
			pos := s.queue.IndexOf(h.client)
			if pos < 0 {
				continue // evicted concurrently; drop
			}
			s.bus.Send(turret.Message{
				Source:  turret.FromClient(turret.Client{Addr: h.client.Addr, QueuePosition: uint32(pos)}),
				Content: content,
			})
		}
		h.teardown(s)
	}()
}
