// Package transport opens the byte stream that carries crane commands. The
// controller is reachable over native USB bulk endpoints, a serial line, or a
// TCP bridge; every flavour is exposed as a Port whose Read honours a per-read
// timeout and reports expiry as ErrTimeout.
package transport

import (
	"errors"
	"os"
	"time"
)

var (
	// ErrTimeout reports that a read saw no data before its deadline.
	ErrTimeout = errors.New("transport: read timed out")
	// ErrClosed reports use of a closed port.
	ErrClosed = errors.New("transport: port closed")
)

// Port is a bidirectional byte stream to the controller.
type Port interface {
	Write(p []byte) (int, error)
	// Read returns ErrTimeout when nothing arrives within the port's read timeout.
	Read(p []byte) (int, error)
	Close() error
}

// IsTimeout reports whether err is a read timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded)
}

const defaultReadTimeout = 5 * time.Second

func readTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultReadTimeout
	}
	return d
}
