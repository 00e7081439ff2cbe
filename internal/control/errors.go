package control

import (
	"errors"

	"github.com/wuspy/turretd/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via
// errors.Is, mirroring the teacher's internal/server/errors.go.
var (
	ErrListen    = errors.New("listen")
	ErrAccept    = errors.New("accept")
	ErrConnWrite = errors.New("conn_write")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrListen):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrAccept):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrConnWrite):
		return metrics.ErrTCPWrite
	default:
		return "control_unknown"
	}
}
