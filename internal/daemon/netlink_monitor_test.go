package daemon

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"platecrane/internal/config"
)

func usbConfig() *config.Config {
	cfg := config.Default()
	return &cfg
}

func TestNewNetlinkMonitor(t *testing.T) {
	t.Run("nil config returns nil", func(t *testing.T) {
		if m := newNetlinkMonitor(nil, nil, nil); m != nil {
			t.Error("expected nil monitor for nil config")
		}
	})

	t.Run("missing usb ids returns nil", func(t *testing.T) {
		cfg := usbConfig()
		cfg.Device.VendorID = 0
		if m := newNetlinkMonitor(cfg, nil, nil); m != nil {
			t.Error("expected nil monitor without vendor id")
		}
	})

	t.Run("valid config creates monitor", func(t *testing.T) {
		m := newNetlinkMonitor(usbConfig(), nil, nil)
		if m == nil {
			t.Fatal("expected non-nil monitor")
		}
		if got := m.productKey(); got != "7513/2/" {
			t.Errorf("unexpected product key %q", got)
		}
	})
}

func TestNetlinkMonitorNilSafety(t *testing.T) {
	var m *netlinkMonitor
	if m.Running() {
		t.Error("expected Running() to return false for nil monitor")
	}
	m.Stop()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil monitor should return nil, got: %v", err)
	}

	unstarted := newNetlinkMonitor(usbConfig(), nil, nil)
	unstarted.Stop()
	unstarted.Stop()
	if unstarted.Running() {
		t.Error("expected Running() to return false after Stop on unstarted monitor")
	}
}

func TestBuildMatcher(t *testing.T) {
	matcher := newNetlinkMonitor(usbConfig(), nil, nil).buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}

	event := func(action netlink.KObjAction, product, devtype string) netlink.UEvent {
		return netlink.UEvent{
			Action: action,
			Env: map[string]string{
				"SUBSYSTEM": "usb",
				"DEVTYPE":   devtype,
				"PRODUCT":   product,
			},
		}
	}

	if !matcher.Evaluate(event(netlink.ADD, "7513/2/100", "usb_device")) {
		t.Error("expected matcher to accept crane add event")
	}
	if !matcher.Evaluate(event(netlink.REMOVE, "7513/2/100", "usb_device")) {
		t.Error("expected matcher to accept crane remove event")
	}
	if matcher.Evaluate(event(netlink.ADD, "7513/2/100", "usb_interface")) {
		t.Error("expected matcher to reject interface events")
	}
	if matcher.Evaluate(event(netlink.ADD, "17513/2/100", "usb_device")) {
		t.Error("expected matcher to reject other vendors")
	}
	if matcher.Evaluate(event(netlink.CHANGE, "7513/2/100", "usb_device")) {
		t.Error("expected matcher to reject change events")
	}
}

func TestHandleEvent(t *testing.T) {
	var calls []bool
	handler := func(_ context.Context, present bool) {
		calls = append(calls, present)
	}
	m := newNetlinkMonitor(usbConfig(), nil, handler)

	m.handleEvent(context.Background(), netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})
	m.handleEvent(context.Background(), netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{}})
	m.handleEvent(context.Background(), netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{}})

	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Fatalf("unexpected handler calls %v", calls)
	}
}
