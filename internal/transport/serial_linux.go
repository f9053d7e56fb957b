//go:build linux

package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// SerialOptions configures a serial line.
type SerialOptions struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// Serial is a raw 8N1 serial line.
type Serial struct {
	mu          sync.Mutex
	fd          int
	device      string
	readTimeout time.Duration
	oldTermios  *unix.Termios
	closed      bool
}

// OpenSerial opens and configures the device in raw mode.
func OpenSerial(opts SerialOptions) (*Serial, error) {
	if opts.Device == "" {
		return nil, errors.New("transport: serial device path required")
	}
	speed, err := baudRateToSpeed(opts.BaudRate)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(opts.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", opts.Device, err)
	}

	oldTermios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: get termios: %w", err)
	}

	termios := *oldTermios
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	termios.Oflag &^= unix.OPOST
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CBAUD
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Ispeed = speed
	termios.Ospeed = speed
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 1

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &termios); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: set termios: %w", err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: set blocking: %w", err)
	}
	// Drop whatever the controller printed before we attached.
	_ = unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)

	return &Serial{
		fd:          fd,
		device:      opts.Device,
		readTimeout: readTimeoutOrDefault(opts.ReadTimeout),
		oldTermios:  oldTermios,
	}, nil
}

func (s *Serial) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	fd := s.fd
	s.mu.Unlock()

	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	deadline := time.Now().Add(s.readTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrTimeout
		}
		n, err := unix.Poll(pfd, int(remaining.Milliseconds())+1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, fmt.Errorf("transport: poll: %w", err)
		}
		if n == 0 {
			return 0, ErrTimeout
		}
		break
	}
	if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return 0, io.EOF
	}
	n, err := unix.Read(fd, p)
	if err != nil {
		return 0, fmt.Errorf("transport: read %s: %w", s.device, err)
	}
	return n, nil
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	fd := s.fd
	s.mu.Unlock()

	written := 0
	for written < len(p) {
		n, err := unix.Write(fd, p[written:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return written, fmt.Errorf("transport: write %s: %w", s.device, err)
		}
		written += n
	}
	return written, nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.oldTermios != nil {
		_ = unix.IoctlSetTermios(s.fd, unix.TCSETS, s.oldTermios)
	}
	return unix.Close(s.fd)
}

func baudRateToSpeed(baud int) (uint32, error) {
	switch baud {
	case 0, 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, fmt.Errorf("transport: unsupported baud rate %d", baud)
	}
}
