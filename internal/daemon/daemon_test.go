package daemon_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"platecrane/internal/daemon"
	"platecrane/internal/logging"
	"platecrane/internal/simulator"
	"platecrane/internal/testsupport"
	"platecrane/internal/transport"
)

func simulatorOpener(ctrl *simulator.Controller) daemon.Opener {
	return func(context.Context) (transport.Port, error) {
		return ctrl.Pipe(2 * time.Second), nil
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctrl := simulator.New(simulator.DefaultOptions())

	d, err := daemon.New(cfg, logging.NewNop(), daemon.WithOpener(simulatorOpener(ctrl)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	status := d.Status()
	if !status.Running || !status.Session.Online {
		t.Fatalf("expected running and online daemon, got %+v", status)
	}
	if status.AttachedAt.IsZero() {
		t.Fatal("expected attach time to be recorded")
	}
	if status.Hotplug {
		t.Fatal("expected hotplug disabled for tcp transport")
	}
	if ctrl.Speed() != cfg.Motion.DefaultSpeed {
		t.Fatalf("expected default speed %d applied, got %d", cfg.Motion.DefaultSpeed, ctrl.Speed())
	}

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	d.Stop()
	status = d.Status()
	if status.Running || status.Session.Online {
		t.Fatalf("expected stopped offline daemon, got %+v", status)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctrl := simulator.New(simulator.DefaultOptions())

	first, err := daemon.New(cfg, logging.NewNop(), daemon.WithOpener(simulatorOpener(ctrl)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	second, err := daemon.New(cfg, logging.NewNop(), daemon.WithOpener(simulatorOpener(ctrl)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	err = second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestDaemonStartsOfflineWhenDeviceMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	failing := func(context.Context) (transport.Port, error) {
		return nil, errors.New("no such device")
	}

	d, err := daemon.New(cfg, logging.NewNop(), daemon.WithOpener(failing))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	status := d.Status()
	if !status.Running || status.Session.Online {
		t.Fatalf("expected running offline daemon, got %+v", status)
	}
	if status.LastAttachError != "no such device" {
		t.Fatalf("unexpected attach error %q", status.LastAttachError)
	}

	if _, err := d.Session().Home(context.Background()); err == nil {
		t.Fatal("expected Home to fail without a device")
	}
}

func TestDaemonReconnect(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctrl := simulator.New(simulator.DefaultOptions())

	d, err := daemon.New(cfg, logging.NewNop(), daemon.WithOpener(simulatorOpener(ctrl)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	d.Session().Detach()
	if d.Status().Session.Online {
		t.Fatal("expected session offline after detach")
	}
	if err := d.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect returned error: %v", err)
	}
	if !d.Status().Session.Online {
		t.Fatal("expected session online after reconnect")
	}
	if _, err := d.Session().Home(context.Background()); err != nil {
		t.Fatalf("Home after reconnect returned error: %v", err)
	}
}
