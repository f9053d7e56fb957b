// Package daemonrun hosts the foreground daemon process: logger setup, pid
// file, the crane daemon itself and the IPC server in front of it.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"platecrane/internal/config"
	"platecrane/internal/daemon"
	"platecrane/internal/ipc"
	"platecrane/internal/logging"
	"platecrane/internal/simulator"
	"platecrane/internal/transport"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Simulate drives an in-process simulated controller instead of the
	// configured device.
	Simulate bool
}

// PIDPath returns the pid file written by Run.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "platecraned.pid")
}

// Run starts the platecrane daemon and blocks until a signal arrives or ctx
// ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		Journal:     cfg.Logging.Journal,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var daemonOpts []daemon.Option
	if opts.Simulate {
		daemonOpts = append(daemonOpts, daemon.WithOpener(simulatedOpener(cfg, logger)))
	}
	d, err := daemon.New(cfg, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	logger.Info("platecrane daemon ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", cfg.Paths.SocketPath),
		logging.Bool("simulated", opts.Simulate),
		logging.Int("locations", len(cfg.Locations)),
	)

	<-signalCtx.Done()
	logger.Info("platecrane daemon shutting down")
	return nil
}

// simulatedOpener hands out pipes to one simulated controller so the arm
// keeps its pose across reconnects.
func simulatedOpener(cfg *config.Config, logger *slog.Logger) daemon.Opener {
	ctrl := simulator.New(simulator.DefaultOptions())
	logger.Warn("using simulated crane controller",
		logging.String(logging.FieldEventType, "simulator_enabled"),
		logging.String(logging.FieldImpact, "no hardware will move"),
	)
	readTimeout := cfg.ReadTimeout()
	if readTimeout <= 0 {
		readTimeout = time.Second
	}
	return func(context.Context) (transport.Port, error) {
		return ctrl.Pipe(readTimeout), nil
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
