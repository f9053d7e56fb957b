package simulator

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"platecrane/internal/logging"
	"platecrane/internal/transport"
)

// Serve answers commands read from conn until it is closed. Each reply is
// written line by line so readers see the echo arrive in its own chunk.
func (c *Controller) Serve(conn net.Conn) error {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			if werr := writeReply(conn, c.Handle(line)); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

func writeReply(w io.Writer, reply string) error {
	for _, line := range strings.SplitAfter(reply, "\r\n") {
		if line == "" {
			continue
		}
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Pipe connects an in-memory Port to the controller. Closing the port stops
// the serving goroutine.
func (c *Controller) Pipe(readTimeout time.Duration) transport.Port {
	client, server := net.Pipe()
	go func() { _ = c.Serve(server) }()
	return transport.NewConn(client, readTimeout)
}

// Server exposes a Controller on a TCP listener, standing in for a serial
// bridge.
type Server struct {
	controller *Controller
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer wraps controller.
func NewServer(controller *Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{controller: controller, logger: logger.With(logging.String(logging.FieldComponent, "simulator"))}
}

// Controller returns the simulated device.
func (s *Server) Controller() *Controller {
	return s.controller
}

// Listen binds address. An address ending in ":0" picks a free port.
func (s *Server) Listen(address string) (net.Addr, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return ln.Addr(), nil
}

// Serve accepts connections until ctx is cancelled. Connections are handled
// one at a time, as the hardware only talks to one host.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("simulator: Listen must be called before Serve")
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		_ = ln.Close()
	}()
	s.logger.Info("simulator listening", logging.String("address", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.logger.Debug("host connected", logging.String("remote", conn.RemoteAddr().String()))
		if err := s.controller.Serve(conn); err != nil {
			s.logger.Warn("connection ended with error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "simulator_conn_error"),
				logging.String(logging.FieldErrorHint, "reconnect the host"),
			)
		}
	}
}
