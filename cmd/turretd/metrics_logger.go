package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wuspy/turretd/internal/metrics"
)

// startMetricsLogger periodically logs a metrics snapshot, adapted from
// the teacher's cmd/can-server/metrics_logger.go to this system's counters.
func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"arduino_rx", snap.ArduinoRx,
					"arduino_tx", snap.ArduinoTx,
					"rate_limited", snap.RateLimited,
					"tcp_rx", snap.TCPRx,
					"tcp_tx", snap.TCPTx,
					"bus_drops", snap.BusDrops,
					"errors", snap.Errors,
					"queue_clients", snap.QueueClients,
					"queue_rejects", snap.QueueRejects,
					"watchdog_evictions", snap.WatchdogEvicts,
					"video_branches", snap.VideoBranches,
					"video_handshake_failed", snap.VideoHandFailed,
					"malformed", snap.Malformed,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
