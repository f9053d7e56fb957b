package protocol

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"platecrane/internal/faults"
	"platecrane/internal/logging"
	"platecrane/internal/transport"
)

const (
	defaultReadSize = 200
	// maxEmptyReads ends a read loop on a port that keeps returning nothing
	// without reporting a timeout.
	maxEmptyReads = 64
)

// Options configures a Client.
type Options struct {
	ReadSize int
	State    *DeviceState
	Logger   *slog.Logger
}

// Client sends commands and collects responses. Sends are serialized so the
// byte stream never interleaves two commands.
type Client struct {
	mu       sync.Mutex
	port     transport.Port
	state    *DeviceState
	readSize int
	logger   *slog.Logger
}

// NewClient wraps port. port may be nil while the device is detached.
func NewClient(port transport.Port, opts Options) *Client {
	if opts.ReadSize <= 0 {
		opts.ReadSize = defaultReadSize
	}
	if opts.State == nil {
		opts.State = NewDeviceState()
	}
	return &Client{
		port:     port,
		state:    opts.State,
		readSize: opts.ReadSize,
		logger:   logging.NewComponentLogger(opts.Logger, "protocol"),
	}
}

// State returns the shared device state.
func (c *Client) State() *DeviceState {
	return c.state
}

// Attach swaps in a new port and returns the previous one, which the caller
// owns.
func (c *Client) Attach(port transport.Port) transport.Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.port
	c.port = port
	return previous
}

// Attached reports whether a port is present.
func (c *Client) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port != nil
}

// Send writes command and reads until the controller echoes it back. A read
// timeout ends the exchange quietly with whatever arrived; a write failure or
// any other read failure is a TransportError and the partial response is
// returned alongside it.
func (c *Client) Send(ctx context.Context, command string) (Response, error) {
	cmd := trimCommand(command)
	if err := ctx.Err(); err != nil {
		return Parse(cmd, ""), faults.Wrap(faults.ErrTransport, "protocol", cmd, "request abandoned before write", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		err := faults.Wrap(faults.ErrTransport, "protocol", cmd, "device not attached", nil)
		c.state.recordError(err.Error())
		return Parse(cmd, ""), err
	}

	logger := logging.WithContext(ctx, c.logger)
	if _, err := c.port.Write([]byte(cmd + "\r\n")); err != nil {
		wrapped := faults.Wrap(faults.ErrTransport, "protocol", cmd, "write failed", err)
		c.state.recordError(wrapped.Error())
		return Parse(cmd, ""), wrapped
	}

	raw, echoed, readErr := c.collect(cmd)
	resp := Parse(cmd, raw)
	resp.Echoed = echoed
	c.state.recordResponse(resp)

	logger.Debug("controller exchange",
		logging.String(logging.FieldCommand, cmd),
		logging.String("response", raw),
		logging.Bool("echoed", echoed),
	)

	if readErr != nil {
		wrapped := faults.Wrap(faults.ErrTransport, "protocol", cmd, "read failed", readErr)
		c.state.recordError(wrapped.Error())
		return resp, wrapped
	}
	return resp, nil
}

func (c *Client) collect(cmd string) (string, bool, error) {
	var acc strings.Builder
	buf := make([]byte, c.readSize)
	empty := 0
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			empty = 0
			chunk := string(buf[:n])
			acc.WriteString(chunk)
			if strings.TrimRight(chunk, "\r\n") == cmd || lastLine(acc.String()) == cmd {
				return acc.String(), true, nil
			}
		}
		if err != nil {
			if transport.IsTimeout(err) {
				return acc.String(), false, nil
			}
			return acc.String(), false, err
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return acc.String(), false, nil
			}
		}
	}
}

func lastLine(text string) string {
	text = strings.TrimRight(text, "\r\n")
	if idx := strings.LastIndexAny(text, "\r\n"); idx >= 0 {
		return text[idx+1:]
	}
	return text
}
