package transport

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"platecrane/internal/config"
)

// Locked is a Port holding an advisory lock that keeps other platecrane
// processes off the same controller.
type Locked struct {
	Port
	lock *flock.Flock
}

// Close releases the port and then the lock.
func (l *Locked) Close() error {
	err := l.Port.Close()
	if l.lock != nil {
		_ = l.lock.Unlock()
	}
	return err
}

// Open selects the transport named by dev and opens it. When lockDir is set a
// per-device lock file is taken first; a held lock fails immediately.
func Open(ctx context.Context, dev config.Device, lockDir string) (Port, error) {
	var lock *flock.Flock
	if lockDir != "" {
		lock = flock.New(filepath.Join(lockDir, lockName(dev)))
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("transport: acquire device lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("transport: device %s is in use by another process", Describe(dev))
		}
	}

	port, err := open(ctx, dev)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, err
	}
	if lock == nil {
		return port, nil
	}
	return &Locked{Port: port, lock: lock}, nil
}

func open(ctx context.Context, dev config.Device) (Port, error) {
	readTimeout := time.Duration(dev.ReadTimeoutMillis) * time.Millisecond
	switch dev.Transport {
	case config.TransportUSB:
		usb, err := OpenUSB(USBOptions{
			VendorID:    dev.VendorID,
			ProductID:   dev.ProductID,
			Interface:   dev.Interface,
			OutEndpoint: dev.OutEndpoint,
			InEndpoint:  dev.InEndpoint,
			ReadTimeout: readTimeout,
		})
		if err != nil {
			return nil, err
		}
		return usb, nil
	case config.TransportSerial:
		serial, err := OpenSerial(SerialOptions{
			Device:      dev.SerialDevice,
			BaudRate:    dev.BaudRate,
			ReadTimeout: readTimeout,
		})
		if err != nil {
			return nil, err
		}
		return serial, nil
	case config.TransportTCP:
		conn, err := Dial(ctx, dev.Address, readTimeout)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("transport: unknown transport %q", dev.Transport)
	}
}

// Describe renders the device selection for logs and status output.
func Describe(dev config.Device) string {
	switch dev.Transport {
	case config.TransportUSB:
		return fmt.Sprintf("usb %04x:%04x", dev.VendorID, dev.ProductID)
	case config.TransportSerial:
		return "serial " + dev.SerialDevice
	case config.TransportTCP:
		return "tcp " + dev.Address
	default:
		return dev.Transport
	}
}

func lockName(dev config.Device) string {
	name := strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(Describe(dev))
	return "device-" + name + ".lock"
}
