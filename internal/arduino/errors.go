package arduino

import "errors"

// Sentinel errors used for wrapping so callers can classify via errors.Is,
// mirroring internal/server/errors.go's convention in the teacher.
var (
	ErrOpenPort  = errors.New("open_port")
	ErrPortRead  = errors.New("port_read")
	ErrPortWrite = errors.New("port_write")
)
