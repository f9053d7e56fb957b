//go:build !linux

package transport

import (
	"errors"
	"time"
)

// USBOptions identifies the controller and its bulk endpoints.
type USBOptions struct {
	VendorID    int
	ProductID   int
	Interface   int
	OutEndpoint int
	InEndpoint  int
	ReadTimeout time.Duration
	SysfsRoot   string
	DevRoot     string
}

// USB is unavailable off Linux.
type USB struct{}

func OpenUSB(USBOptions) (*USB, error) {
	return nil, errors.New("transport: usb bulk transfers are only supported on linux")
}

func FindUSBDevice(string, string, int, int) (string, error) {
	return "", errors.New("transport: usb discovery is only supported on linux")
}

func (*USB) Read([]byte) (int, error)  { return 0, ErrClosed }
func (*USB) Write([]byte) (int, error) { return 0, ErrClosed }
func (*USB) Close() error              { return nil }
func (*USB) Path() string              { return "" }
