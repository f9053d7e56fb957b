package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"platecrane/internal/config"
	"platecrane/internal/crane"
	"platecrane/internal/inventory"
	"platecrane/internal/ledger"
	"platecrane/internal/logging"
	"platecrane/internal/protocol"
	"platecrane/internal/transport"
)

// Opener produces a fresh port to the controller.
type Opener func(ctx context.Context) (transport.Port, error)

// Daemon owns the crane session and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	session *crane.Session
	ledger  ledger.Ledger
	open    Opener
	monitor *netlinkMonitor

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu            sync.Mutex
	lastAttachErr error
	attachedAt    time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool         `json:"running"`
	PID             int          `json:"pid"`
	LockPath        string       `json:"lock_path"`
	Device          string       `json:"device"`
	Hotplug         bool         `json:"hotplug"`
	AttachedAt      time.Time    `json:"attached_at,omitzero"`
	LastAttachError string       `json:"last_attach_error,omitempty"`
	LedgerBackend   string       `json:"ledger_backend"`
	Session         crane.Report `json:"session"`
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithOpener replaces the configured transport, typically with a simulator.
func WithOpener(open Opener) Option {
	return func(d *Daemon) {
		d.open = open
	}
}

// New builds the inventory, ledger and session described by cfg. The device
// is not opened until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("plate catalog: %w", err)
	}
	model, err := inventory.FromConfig(cfg, catalog)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	led, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	client := protocol.NewClient(nil, protocol.Options{ReadSize: cfg.Device.ReadSize, Logger: logger})
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		session:  crane.New(client, model, led, crane.OptionsFromConfig(cfg, logger)),
		ledger:   led,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.open = func(ctx context.Context) (transport.Port, error) {
		return transport.Open(ctx, cfg.Device, cfg.Paths.StateDir)
	}
	for _, opt := range opts {
		opt(d)
	}
	if cfg.Device.Hotplug && cfg.Device.Transport == config.TransportUSB {
		d.monitor = newNetlinkMonitor(cfg, logger, d.handleDeviceEvent)
	}
	return d, nil
}

// Session returns the crane session.
func (d *Daemon) Session() *crane.Session {
	return d.session
}

// Start acquires the daemon lock, attaches the device and starts the hotplug
// monitor. A device that cannot be opened leaves the daemon running offline.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another platecrane daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.Reconnect(d.ctx); err != nil {
		logging.WarnWithContext(d.logger, "device unavailable at startup", "device_attach_failed",
			logging.Error(err),
			logging.String("device", transport.Describe(d.cfg.Device)),
			logging.String(logging.FieldErrorHint, "check the cable and device permissions; the daemon reconnects on hotplug"),
			logging.String(logging.FieldImpact, "crane operations fail until the device is attached"),
		)
	}
	if err := d.monitor.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start hotplug monitor: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("platecrane daemon started",
		logging.String("lock", d.lockPath),
		logging.String("device", transport.Describe(d.cfg.Device)),
	)
	return nil
}

// Stop detaches the device and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.monitor.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.session.Detach()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_unlock_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("platecrane daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.ledger != nil {
		return d.ledger.Close()
	}
	return nil
}

// Reconnect opens a fresh port and hands it to the session.
func (d *Daemon) Reconnect(ctx context.Context) error {
	port, err := d.open(ctx)
	if err != nil {
		d.recordAttach(err)
		return err
	}
	if err := d.session.Attach(ctx, port); err != nil {
		d.recordAttach(err)
		return err
	}
	d.recordAttach(nil)
	d.logger.Info("device attached",
		logging.String(logging.FieldEventType, "device_attached"),
		logging.String("device", transport.Describe(d.cfg.Device)),
	)
	return nil
}

func (d *Daemon) recordAttach(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastAttachErr = err
	if err == nil {
		d.attachedAt = time.Now()
	}
}

// handleDeviceEvent reacts to the controller appearing or disappearing.
func (d *Daemon) handleDeviceEvent(ctx context.Context, present bool) {
	if !present {
		d.session.Detach()
		logging.WarnWithContext(d.logger, "device removed", "device_removed",
			logging.String(logging.FieldErrorHint, "reconnect the crane controller"),
			logging.String(logging.FieldImpact, "operations fail until the device returns"),
		)
		return
	}
	if err := d.Reconnect(ctx); err != nil {
		logging.WarnWithContext(d.logger, "device reattach failed", "device_attach_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check device permissions"),
			logging.String(logging.FieldImpact, "crane remains offline"),
		)
	}
}

// Status returns the daemon state. It never waits for the device.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	attachErr := d.lastAttachErr
	attachedAt := d.attachedAt
	d.mu.Unlock()

	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		LockPath:      d.lockPath,
		Device:        transport.Describe(d.cfg.Device),
		Hotplug:       d.monitor.Running(),
		AttachedAt:    attachedAt,
		LedgerBackend: d.cfg.Ledger.Backend,
		Session:       d.session.Report(),
	}
	if attachErr != nil {
		status.LastAttachError = attachErr.Error()
	}
	return status
}
