package arduino

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability, mirroring the teacher's
// internal/serial.Port interface.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens an 8N1 serial port at the given baud rate with the given
// read timeout (§4.3).
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
