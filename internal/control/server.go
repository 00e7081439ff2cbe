package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wuspy/turretd/internal/bus"
	"github.com/wuspy/turretd/internal/logging"
	"github.com/wuspy/turretd/internal/metrics"
	"github.com/wuspy/turretd/internal/turret"
)

// Server owns the TCP listener for control clients, the FIFO queue and the
// bus subscription that turns hardware/video events into client-facing
// lines. Generalized from the teacher's internal/server.Server: the
// cannelloni handshake and per-connection codec are gone (the wire here is
// line-delimited JSON, not a framed binary handshake), but the
// accept/register/spawn-goroutines/teardown shape is the same.
type Server struct {
	mu   sync.RWMutex
	addr string

	queue *Queue
	bus   *bus.Bus

	maxClients int

	// videoDecoderCmd is the opaque decoder pipeline description forwarded
	// verbatim to clients alongside a video_streaming notice (§6).
	videoDecoderCmd string

	logger *slog.Logger

	readyOnce sync.Once
	readyCh   chan struct{}

	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error

	listener net.Listener
	ctxDone  <-chan struct{}

	wg         sync.WaitGroup
	nextConnID uint64

	totalAccepted     atomic.Uint64
	totalRejected     atomic.Uint64
	totalConnected    atomic.Uint64
	totalDisconnected atomic.Uint64
}

type ServerOption func(*Server)

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		queue:   NewQueue(),
		bus:     bus.New(),
		readyCh: make(chan struct{}),
		errCh:   make(chan error, 1),
		logger:  logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }
func WithBus(b *bus.Bus) ServerOption      { return func(s *Server) { s.bus = b } }
func WithMaxClients(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}
func WithVideoDecoderCommand(cmd string) ServerOption {
	return func(s *Server) { s.videoDecoderCmd = cmd }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }
func (s *Server) Queue() *Queue          { return s.queue }
func (s *Server) Bus() *bus.Bus          { return s.bus }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

// connHandle bundles a registered client with its socket and guards
// teardown with a sync.Once so reader, writer and watchdog can all race
// to tear the connection down without double-closing anything.
type connHandle struct {
	client       *Client
	conn         net.Conn
	teardownOnce sync.Once
}

// teardown removes the client from the queue, broadcasts the updated
// queue state to the remaining members, announces the departure on the
// bus, and closes the socket. Safe to call from reader, writer and
// watchdog concurrently.
func (h *connHandle) teardown(s *Server) {
	h.teardownOnce.Do(func() {
		if s.queue.Remove(h.client) {
			s.queue.BroadcastState()
			s.totalDisconnected.Add(1)
			s.bus.Send(turret.Message{
				Source:  turret.FromControlServer(),
				Content: turret.ContentClientDisconnectedOf(turret.Client{Addr: h.client.Addr}),
			})
		}
		h.client.Close()
		_ = h.conn.Close()
	})
}

// Serve accepts control clients until ctx is canceled. It is a
// supervisor-factory: any non-nil error it returns triggers the standard
// 5s-backoff restart.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	if addr == "" {
		addr = ":0"
	}
	s.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.listener = ln
	s.ctxDone = ctx.Done()
	s.readyOnce.Do(func() { close(s.readyCh) })

	s.logger.Info("control_listen", "addr", s.Addr())

	go func() { <-ctx.Done(); _ = ln.Close() }()
	go s.consumeBus(ctx)

	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return err
		}
	}
}

// acceptOnce accepts a single connection, registers it in the queue and
// spawns its reader/writer/watchdog goroutines.
func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if _, ok := err.(net.Error); ok {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}

	s.totalAccepted.Add(1)
	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}

	if s.maxClients > 0 && s.queue.Len() >= s.maxClients {
		metrics.IncQueueReject()
		connLogger.Warn("control_client_reject_max", "max_clients", s.maxClients)
		s.totalRejected.Add(1)
		_ = conn.Close()
		return nil
	}

	ep := turret.EndpointFromAddr(conn.RemoteAddr())

	client := newClient(ep)
	s.queue.Enqueue(client)
	s.queue.BroadcastState()
	s.totalConnected.Add(1)
	connLogger.Info("control_client_connected", "addr", ep.String())

	s.bus.Send(turret.Message{
		Source:  turret.FromControlServer(),
		Content: turret.ContentClientConnectedOf(turret.Client{Addr: ep}),
	})

	h := &connHandle{client: client, conn: conn}
	s.startWriter(conn, h, connLogger)
	s.startReader(conn, h, connLogger)
	s.startWatchdog(conn, h, connLogger)
	return nil
}

// Shutdown closes the listener and all registered clients, then waits for
// their goroutines to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range s.queue.Snapshot() {
		c.Close()
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	case <-done:
		s.logger.Info("control_shutdown_summary",
			"accepted", s.totalAccepted.Load(),
			"rejected", s.totalRejected.Load(),
			"connected", s.totalConnected.Load(),
			"disconnected", s.totalDisconnected.Load(),
		)
		return nil
	}
}
