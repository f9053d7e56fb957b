//go:build linux

package transport

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// usbfs ioctl request numbers from linux/usbdevice_fs.h.
const (
	usbdevfsBulk             = 0xC0185502
	usbdevfsClaimInterface   = 0x8004550F
	usbdevfsReleaseInterface = 0x80045510
)

// usbdevfsBulkTransfer mirrors struct usbdevfs_bulktransfer on 64-bit kernels.
type usbdevfsBulkTransfer struct {
	Endpoint uint32
	Length   uint32
	Timeout  uint32
	_        uint32
	Data     unsafe.Pointer
}

// USBOptions identifies the controller and its bulk endpoints.
type USBOptions struct {
	VendorID    int
	ProductID   int
	Interface   int
	OutEndpoint int
	InEndpoint  int
	ReadTimeout time.Duration
	// SysfsRoot overrides /sys/bus/usb/devices for discovery.
	SysfsRoot string
	// DevRoot overrides /dev/bus/usb.
	DevRoot string
}

// USB talks to the controller through usbfs bulk transfers.
type USB struct {
	mu          sync.Mutex
	fd          int
	path        string
	iface       uint32
	outEP       uint32
	inEP        uint32
	readTimeout time.Duration
	closed      bool
}

// OpenUSB locates the first device matching the vendor/product pair, claims
// its interface and returns a bulk Port.
func OpenUSB(opts USBOptions) (*USB, error) {
	path, err := FindUSBDevice(opts.SysfsRoot, opts.DevRoot, opts.VendorID, opts.ProductID)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}
	iface := uint32(opts.Interface)
	if err := ioctlPtr(fd, usbdevfsClaimInterface, unsafe.Pointer(&iface)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: claim interface %d on %s: %w", iface, path, err)
	}
	return &USB{
		fd:          fd,
		path:        path,
		iface:       iface,
		outEP:       uint32(opts.OutEndpoint),
		inEP:        uint32(opts.InEndpoint),
		readTimeout: readTimeoutOrDefault(opts.ReadTimeout),
	}, nil
}

func (u *USB) Write(p []byte) (int, error) {
	return u.bulk(u.outEP, p, u.readTimeout)
}

func (u *USB) Read(p []byte) (int, error) {
	n, err := u.bulk(u.inEP, p, u.readTimeout)
	if errors.Is(err, unix.ETIMEDOUT) {
		return n, ErrTimeout
	}
	return n, err
}

func (u *USB) bulk(endpoint uint32, p []byte, timeout time.Duration) (int, error) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return 0, ErrClosed
	}
	fd := u.fd
	u.mu.Unlock()
	if len(p) == 0 {
		return 0, nil
	}

	xfer := usbdevfsBulkTransfer{
		Endpoint: endpoint,
		Length:   uint32(len(p)),
		Timeout:  uint32(timeout.Milliseconds()),
		Data:     unsafe.Pointer(&p[0]),
	}
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbdevfsBulk, uintptr(unsafe.Pointer(&xfer)))
	runtime.KeepAlive(p)
	if errno != 0 {
		return 0, fmt.Errorf("transport: bulk transfer ep %#x: %w", endpoint, errno)
	}
	return int(r), nil
}

func (u *USB) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	_ = ioctlPtr(u.fd, usbdevfsReleaseInterface, unsafe.Pointer(&u.iface))
	return unix.Close(u.fd)
}

// Path returns the usbfs node in use.
func (u *USB) Path() string {
	return u.path
}

func ioctlPtr(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// FindUSBDevice scans sysfs for a device with the given ids and returns its
// usbfs node path.
func FindUSBDevice(sysfsRoot, devRoot string, vendorID, productID int) (string, error) {
	if sysfsRoot == "" {
		sysfsRoot = "/sys/bus/usb/devices"
	}
	if devRoot == "" {
		devRoot = "/dev/bus/usb"
	}
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		return "", fmt.Errorf("transport: scan usb devices: %w", err)
	}
	for _, entry := range entries {
		dir := filepath.Join(sysfsRoot, entry.Name())
		vendor, ok := readSysfsInt(dir, "idVendor", 16)
		if !ok || vendor != vendorID {
			continue
		}
		product, ok := readSysfsInt(dir, "idProduct", 16)
		if !ok || product != productID {
			continue
		}
		bus, okBus := readSysfsInt(dir, "busnum", 10)
		dev, okDev := readSysfsInt(dir, "devnum", 10)
		if !okBus || !okDev {
			continue
		}
		return filepath.Join(devRoot, fmt.Sprintf("%03d", bus), fmt.Sprintf("%03d", dev)), nil
	}
	return "", fmt.Errorf("transport: no usb device %04x:%04x found", vendorID, productID)
}

func readSysfsInt(dir, name string, base int) (int, bool) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, false
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), base, 32)
	if err != nil {
		return 0, false
	}
	return int(value), true
}
