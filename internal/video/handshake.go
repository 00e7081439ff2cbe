package video

import (
	"context"
	"fmt"
	"net"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/wuspy/turretd/internal/metrics"
	"github.com/wuspy/turretd/internal/turret"
)

// nonceAlphabet and nonceLength produce the "32-character alphanumeric"
// nonce described by §3's VideoOffer.
const (
	nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	nonceLength   = 32
)

// handshakeTimeout bounds how long a client has to complete the UDP
// nonce handshake after the offer is sent. The spec deliberately leaves
// this unspecified ("do not guess" on behavior, but implementations
// should pick a concrete value) — 10s comfortably covers a client
// round-tripping the offer over its already-open TCP control connection
// and sending one UDP datagram back.
const handshakeTimeout = 10 * time.Second

// handshakeAndAttach runs the full per-client lifecycle described by
// §4.5: bind, offer, await nonce, attach branch, announce streaming.
// Runs in its own goroutine per client so one slow/malicious handshake
// never blocks another client's.
func (p *Pipeline) handshakeAndAttach(ctx context.Context, c turret.Client) {
	addr := c.Addr

	udpAddr := &net.UDPAddr{IP: net.ParseIP(p.cfg.Host), Port: 0}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		p.failHandshake(addr, fmt.Errorf("%w: %v", ErrHandshakeBind, err))
		return
	}

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stopWatch:
		}
	}()
	closeOnce := func() {
		close(stopWatch)
		_ = conn.Close()
	}

	nonce, err := gonanoid.Generate(nonceAlphabet, nonceLength)
	if err != nil {
		closeOnce()
		p.failHandshake(addr, fmt.Errorf("%w: nonce generation: %v", ErrHandshakeBind, err))
		return
	}

	local := conn.LocalAddr().(*net.UDPAddr)
	p.bus.Send(turret.Message{
		Source: turret.FromVideoServer(),
		Content: turret.ContentFromVideoOffer(turret.VideoOffer{
			Nonce:      nonce,
			ForClient:  addr,
			RTPAddress: local.String(),
		}),
	})

	buf := make([]byte, 32)
	deadline := time.Now().Add(handshakeTimeout)
	for {
		if ctx.Err() != nil {
			closeOnce()
			return
		}
		_ = conn.SetReadDeadline(deadline)
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			closeOnce()
			p.failHandshake(addr, fmt.Errorf("%w: %v", ErrHandshakeBind, err))
			return
		}
		if !addr.SameIP(raddr.IP) {
			p.log.Warn("video_handshake_wrong_ip", "client", addr.String(), "from", raddr.String())
			metrics.IncVideoHandshakeFailure()
			continue
		}
		if string(buf[:n]) != nonce {
			closeOnce()
			p.failHandshake(addr, fmt.Errorf("%w: Received invalid nonce", ErrHandshakeNonce))
			return
		}

		clientIP := raddr.IP.String()
		clientPort := raddr.Port
		closeOnce() // free the port before graph surgery, per §4.5 step 1.

		if err := p.attach(addr, local.IP.String(), local.Port, clientIP, clientPort); err != nil {
			p.failHandshake(addr, err)
			return
		}
		metrics.SetVideoBranches(p.branchCount())
		p.bus.Send(turret.Message{
			Source:  turret.FromVideoServer(),
			Content: turret.ContentFromVideoStreaming(turret.VideoStreaming{ForClient: addr}),
		})
		return
	}
}

func (p *Pipeline) failHandshake(addr turret.Endpoint, err error) {
	metrics.IncError(metrics.ErrVideoHandshake)
	metrics.IncVideoHandshakeFailure()
	p.log.Warn("video_handshake_failed", "client", addr.String(), "error", err)
	p.bus.Send(turret.Message{
		Source:  turret.FromVideoServer(),
		Content: turret.ContentFromVideoError(turret.VideoError{Message: err.Error(), ForClient: &addr}),
	})
}

func (p *Pipeline) branchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.branches)
}
