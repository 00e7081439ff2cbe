package control

import (
	"context"

	"github.com/wuspy/turretd/internal/turret"
)

// consumeBus drains the server's own bus subscription for the lifetime of
// Serve, turning hardware and video events into lines on the right
// client's outbound proxy. It never issues commands itself; it is purely
// a fan-in from Arduino/video sources to clients.
func (s *Server) consumeBus(ctx context.Context) {
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			s.dispatch(msg)
		}
	}
}

func (s *Server) dispatch(msg turret.Message) {
	switch msg.Content.Kind {
	case turret.ContentHardwareState:
		s.broadcastLine(EncodeHardwareState(msg.Content.HardwareState))
	case turret.ContentVideoOffer:
		o := msg.Content.VideoOffer
		s.sendTo(o.ForClient, EncodeVideoOffer(o.Nonce, o.RTPAddress))
	case turret.ContentVideoStreaming:
		s.sendTo(msg.Content.VideoStreaming.ForClient, EncodeVideoStreaming(s.videoDecoderCmd))
	case turret.ContentVideoError:
		e := msg.Content.VideoError
		if e.ForClient == nil {
			s.broadcastLine(EncodeVideoError(e.Message))
			return
		}
		s.sendTo(*e.ForClient, EncodeVideoError(e.Message))
	default:
		// commands, pings, and client-connect/disconnect events are not
		// client-facing lines.
	}
}

func (s *Server) broadcastLine(line []byte) {
	for _, c := range s.queue.Snapshot() {
		if !c.Enqueue(line) {
			s.queue.Remove(c)
			c.Close()
		}
	}
}

func (s *Server) sendTo(addr turret.Endpoint, line []byte) {
	c := s.queue.FindByAddr(addr)
	if c == nil {
		return
	}
	if !c.Enqueue(line) {
		s.queue.Remove(c)
		c.Close()
	}
}
