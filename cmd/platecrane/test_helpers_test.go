package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"platecrane/internal/config"
	"platecrane/internal/daemon"
	"platecrane/internal/ipc"
	"platecrane/internal/logging"
	"platecrane/internal/simulator"
	"platecrane/internal/testsupport"
	"platecrane/internal/transport"
)

type cliTestEnv struct {
	cfg        *config.Config
	controller *simulator.Controller
	daemon     *daemon.Daemon
	socketPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Chdir(homeDir)

	cfg := testsupport.NewConfig(t, opts...)
	ctrl := simulator.New(simulator.DefaultOptions())
	opener := func(context.Context) (transport.Port, error) {
		return ctrl.Pipe(2 * time.Second), nil
	}

	logger := logging.NewNop()
	d, err := daemon.New(cfg, logger, daemon.WithOpener(opener))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		cancel()
		_ = d.Close()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		controller: ctrl,
		daemon:     d,
		socketPath: cfg.Paths.SocketPath,
	}
}

func runCLI(t *testing.T, args []string, socket string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
