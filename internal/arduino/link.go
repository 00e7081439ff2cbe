// Package arduino implements the serial link to the turret's
// microcontroller: frame decoding with CRC resync, command encoding, and
// the bus-side filtering and rate limiting described in §4.3. It
// generalizes the teacher's internal/serial package (fixed framing,
// single-writer-goroutine TX) from the cannelloni UART envelope to the
// 11-byte CRC-16/USB frame used here.
package arduino

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/wuspy/turretd/internal/bus"
	"github.com/wuspy/turretd/internal/logging"
	"github.com/wuspy/turretd/internal/metrics"
	"github.com/wuspy/turretd/internal/turret"
)

const (
	readBufSize     = 256
	rateLimitMax    = 10
	rateLimitWindow = 100 * time.Millisecond
)

// Config carries the serial parameters and hardware speed scaling needed
// by the link.
type Config struct {
	Device string
	Baud   int

	ReadTimeout time.Duration
	Speeds      Speeds
}

// OpenFunc lets tests substitute a fake port.
type OpenFunc func(device string, baud int, readTimeout time.Duration) (Port, error)

// Link owns the serial port exclusively, as required by §5: only its own
// reader and writer half-tasks touch it.
type Link struct {
	cfg  Config
	open OpenFunc
	log  *slog.Logger
}

// New constructs a Link. If open is nil, Open is used.
func New(cfg Config, open OpenFunc) *Link {
	if open == nil {
		open = Open
	}
	return &Link{cfg: cfg, open: open, log: logging.Component("arduino")}
}

// Run opens the serial port and pumps frames in both directions until ctx
// is cancelled or a fatal error occurs. It matches the supervisor's
// factory signature (§4.2) — any returned error triggers a 5s-backoff
// restart.
func (l *Link) Run(ctx context.Context, b *bus.Bus) error {
	port, err := l.open(l.cfg.Device, l.cfg.Baud, l.cfg.ReadTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpenPort, err)
	}
	defer func() { _ = port.Close() }()
	l.log.Info("arduino_open", "device", l.cfg.Device, "baud", l.cfg.Baud)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	var codec Codec
	writeErrCh := make(chan error, 1)
	tx := newAsyncTx(ctx, 64,
		func(cmd turret.Command) error {
			frame := codec.Encode(cmd, l.cfg.Speeds)
			if _, err := port.Write(frame); err != nil {
				return fmt.Errorf("%w: %v", ErrPortWrite, err)
			}
			return nil
		},
		func(err error) {
			metrics.IncError(metrics.ErrArduinoWrite)
			l.log.Error("arduino_write_error", "error", err)
			select {
			case writeErrCh <- err:
			default:
			}
		},
		func() { metrics.IncArduinoTx() },
	)
	defer tx.Close()

	go l.filterAndRateLimit(ctx, sub, tx, writeErrCh)

	readErrCh := make(chan error, 1)
	go l.readLoop(ctx, port, b, readErrCh)

	select {
	case <-ctx.Done():
		return nil
	case err := <-readErrCh:
		return err
	case err := <-writeErrCh:
		return err
	}
}

// filterAndRateLimit consumes bus messages, applying §4.3's source filter
// (internal producers or the authoritative client only) and the leaky
// rate limiter, before handing accepted commands to the async writer.
func (l *Link) filterAndRateLimit(ctx context.Context, sub *bus.Subscriber, tx *asyncTx, errCh chan<- error) {
	limiter := NewRateLimiter(rateLimitMax, rateLimitWindow)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if msg.Content.Kind != turret.ContentCommand {
				continue
			}
			if !msg.Source.IsAuthoritative() {
				continue
			}
			if !limiter.Allow(time.Now()) {
				metrics.IncRateLimited()
				l.log.Warn("arduino_rate_limited", "command", msg.Content.Command.Kind.String())
				continue
			}
			if err := tx.SendCommand(msg.Content.Command); err != nil {
				if errors.Is(err, ErrTxOverflow) {
					l.log.Warn("arduino_tx_overflow", "command", msg.Content.Command.Kind.String())
					continue
				}
				select {
				case errCh <- err:
				default:
				}
				return
			}
		}
	}
}

// readLoop decodes hardware state frames from the serial port and
// broadcasts them on the bus. Read errors are fatal and bubble up to the
// supervisor; CRC mismatches are recoverable in-band (§4.3).
func (l *Link) readLoop(ctx context.Context, port Port, b *bus.Bus, errCh chan<- error) {
	var codec Codec
	buf := make([]byte, readBufSize)
	acc := bytes.NewBuffer(nil)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := port.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			codec.DecodeStream(acc, func(hs turret.HardwareState) {
				b.Send(turret.Message{
					Source:  turret.FromArduino(),
					Content: turret.ContentFromHardwareState(hs),
				})
			})
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var perr *os.PathError
			if errors.As(err, &perr) {
				metrics.IncError(metrics.ErrArduinoRead)
				select {
				case errCh <- fmt.Errorf("%w: %v", ErrPortRead, err):
				default:
				}
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue // ignore transient EOF, matches the 10ms read timeout polling cadence
			}
			// Any other read error is treated as fatal per §4.3.
			metrics.IncError(metrics.ErrArduinoRead)
			select {
			case errCh <- fmt.Errorf("%w: %v", ErrPortRead, err):
			default:
			}
			return
		}
	}
}
