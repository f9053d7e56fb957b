//go:build !linux

package transport

import (
	"errors"
	"time"
)

// SerialOptions configures a serial line.
type SerialOptions struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// Serial is unavailable off Linux.
type Serial struct{}

func OpenSerial(SerialOptions) (*Serial, error) {
	return nil, errors.New("transport: serial lines are only supported on linux")
}

func (*Serial) Read([]byte) (int, error)  { return 0, ErrClosed }
func (*Serial) Write([]byte) (int, error) { return 0, ErrClosed }
func (*Serial) Close() error              { return nil }
