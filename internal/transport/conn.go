package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// Conn adapts a net.Conn to Port, applying a fresh read deadline to every read.
type Conn struct {
	mu          sync.Mutex
	conn        net.Conn
	readTimeout time.Duration
	closed      bool
}

// NewConn wraps conn. A non-positive readTimeout selects five seconds.
func NewConn(conn net.Conn, readTimeout time.Duration) *Conn {
	return &Conn{conn: conn, readTimeout: readTimeoutOrDefault(readTimeout)}
}

// Dial opens a TCP connection to a serial bridge or simulator.
func Dial(ctx context.Context, address string, readTimeout time.Duration) (*Conn, error) {
	if address == "" {
		return nil, errors.New("transport: tcp address required")
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}
	return NewConn(conn, readTimeout), nil
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	return c.conn.Write(p)
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return 0, fmt.Errorf("transport: set deadline: %w", err)
	}
	n, err := c.conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return n, err
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
