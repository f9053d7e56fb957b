package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"platecrane/internal/config"
	"platecrane/internal/logging"
)

// netlinkMonitor listens for udev netlink events for the crane's USB
// controller and reports when it is plugged in or removed.
type netlinkMonitor struct {
	logger    *slog.Logger
	handler   func(ctx context.Context, present bool)
	vendorID  int
	productID int

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newNetlinkMonitor creates a monitor for the configured USB ids.
func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, handler func(ctx context.Context, present bool)) *netlinkMonitor {
	if cfg == nil || cfg.Device.VendorID <= 0 || cfg.Device.ProductID <= 0 {
		return nil
	}
	return &netlinkMonitor{
		logger:    logging.NewComponentLogger(logger, "netlink-monitor"),
		handler:   handler,
		vendorID:  cfg.Device.VendorID,
		productID: cfg.Device.ProductID,
	}
}

// Start begins listening for udev netlink events.
func (m *netlinkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; device reconnects need a daemon restart",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "hotplug detection unavailable"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
		logging.String("product", m.productKey()),
	)
	return nil
}

// Stop shuts down the netlink monitor.
func (m *netlinkMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the netlink monitor is active.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "hotplug detection may be affected"),
			)
		}
	}
}

// productKey is the PRODUCT uevent prefix: lower-case hex ids without
// leading zeros.
func (m *netlinkMonitor) productKey() string {
	return fmt.Sprintf("%x/%x/", m.vendorID, m.productID)
}

// buildMatcher matches add and remove events of the configured USB device.
// Interface events carry the same PRODUCT, so only whole-device events
// (DEVTYPE=usb_device) are taken.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "^(add|remove)$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^usb$",
			"DEVTYPE":   "^usb_device$",
			"PRODUCT":   "^" + m.productKey(),
		},
	})
	return rules
}

func (m *netlinkMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	present := uevent.Action == netlink.ADD
	if uevent.Action != netlink.ADD && uevent.Action != netlink.REMOVE {
		m.logger.Debug("ignoring device event", logging.String("action", string(uevent.Action)))
		return
	}
	m.logger.Info("crane controller hotplug",
		logging.String(logging.FieldEventType, "netlink_device_"+string(uevent.Action)),
		logging.String("product", uevent.Env["PRODUCT"]),
		logging.String("devpath", uevent.Env["DEVPATH"]),
	)
	if m.handler != nil {
		m.handler(ctx, present)
	}
}
