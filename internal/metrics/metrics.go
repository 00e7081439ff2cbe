package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/wuspy/turretd/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	ArduinoRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arduino_rx_frames_total",
		Help: "Total hardware-state frames decoded from the serial link.",
	})
	ArduinoTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arduino_tx_frames_total",
		Help: "Total command frames written to the serial link.",
	})
	ArduinoRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arduino_rate_limited_total",
		Help: "Total commands dropped by the 100ms leaky rate limiter.",
	})
	TCPRxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_messages_total",
		Help: "Total JSON request lines received from TCP clients.",
	})
	TCPTxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_messages_total",
		Help: "Total JSON response lines sent to TCP clients.",
	})
	BusDroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_dropped_messages_total",
		Help: "Total messages dropped because a subscriber's queue was full.",
	})
	BusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bus_subscribers",
		Help: "Current number of live bus subscribers.",
	})
	QueueActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "control_queue_clients",
		Help: "Current number of clients in the control queue.",
	})
	QueueRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_queue_rejected_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	WatchdogEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_watchdog_evictions_total",
		Help: "Total clients evicted for inactivity.",
	})
	VideoActiveBranches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "video_active_branches",
		Help: "Current number of attached per-client video branches.",
	})
	VideoHandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_handshake_failures_total",
		Help: "Total UDP nonce handshake failures.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total serial frames rejected for a CRC mismatch.",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead        = "tcp_read"
	ErrTCPWrite       = "tcp_write"
	ErrArduinoRead    = "arduino_read"
	ErrArduinoWrite   = "arduino_write"
	ErrVideoHandshake = "video_handshake"
	ErrVideoPipeline  = "video_pipeline"
)

// StartHTTP serves Prometheus metrics at /metrics and the readiness probe
// at /ready on addr, using a mux of its own.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localArduinoRx     uint64
	localArduinoTx     uint64
	localRateLimited   uint64
	localTCPRx         uint64
	localTCPTx         uint64
	localBusDrop       uint64
	localErrors        uint64
	localQueueClients  uint64
	localQueueRejects  uint64
	localWatchdogEvict uint64
	localVideoBranches uint64
	localVideoHandFail uint64
	localMalformed     uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	ArduinoRx       uint64
	ArduinoTx       uint64
	RateLimited     uint64
	TCPRx           uint64
	TCPTx           uint64
	BusDrops        uint64
	Errors          uint64
	QueueClients    uint64
	QueueRejects    uint64
	WatchdogEvicts  uint64
	VideoBranches   uint64
	VideoHandFailed uint64
	Malformed       uint64
}

func Snap() Snapshot {
	return Snapshot{
		ArduinoRx:       atomic.LoadUint64(&localArduinoRx),
		ArduinoTx:       atomic.LoadUint64(&localArduinoTx),
		RateLimited:     atomic.LoadUint64(&localRateLimited),
		TCPRx:           atomic.LoadUint64(&localTCPRx),
		TCPTx:           atomic.LoadUint64(&localTCPTx),
		BusDrops:        atomic.LoadUint64(&localBusDrop),
		Errors:          atomic.LoadUint64(&localErrors),
		QueueClients:    atomic.LoadUint64(&localQueueClients),
		QueueRejects:    atomic.LoadUint64(&localQueueRejects),
		WatchdogEvicts:  atomic.LoadUint64(&localWatchdogEvict),
		VideoBranches:   atomic.LoadUint64(&localVideoBranches),
		VideoHandFailed: atomic.LoadUint64(&localVideoHandFail),
		Malformed:       atomic.LoadUint64(&localMalformed),
	}
}

func IncArduinoRx() {
	ArduinoRxFrames.Inc()
	atomic.AddUint64(&localArduinoRx, 1)
}

func IncArduinoTx() {
	ArduinoTxFrames.Inc()
	atomic.AddUint64(&localArduinoTx, 1)
}

func IncRateLimited() {
	ArduinoRateLimited.Inc()
	atomic.AddUint64(&localRateLimited, 1)
}

func IncTCPRx() {
	TCPRxMessages.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

func IncTCPTx() {
	TCPTxMessages.Inc()
	atomic.AddUint64(&localTCPTx, 1)
}

func IncBusDrop() {
	BusDroppedMessages.Inc()
	atomic.AddUint64(&localBusDrop, 1)
}

func SetBusSubscribers(n int) { BusSubscribers.Set(float64(n)) }

func SetQueueClients(n int) {
	QueueActiveClients.Set(float64(n))
	atomic.StoreUint64(&localQueueClients, uint64(n))
}

func IncQueueReject() {
	QueueRejectedClients.Inc()
	atomic.AddUint64(&localQueueRejects, 1)
}

func IncWatchdogEviction() {
	WatchdogEvictions.Inc()
	atomic.AddUint64(&localWatchdogEvict, 1)
}

func SetVideoBranches(n int) {
	VideoActiveBranches.Set(float64(n))
	atomic.StoreUint64(&localVideoBranches, uint64(n))
}

func IncVideoHandshakeFailure() {
	VideoHandshakeFailures.Inc()
	atomic.AddUint64(&localVideoHandFail, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrArduinoRead, ErrArduinoWrite, ErrVideoHandshake, ErrVideoPipeline,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
