package testsupport

import (
	"path/filepath"
	"testing"

	"platecrane/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test
// and the stock deck layout. Options are applied in order.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.SocketPath = filepath.Join(base, "state", "platecrane.sock")
	cfgVal.Paths.LedgerDB = filepath.Join(base, "state", "ledger.db")
	cfgVal.Device.Transport = config.TransportTCP
	cfgVal.Device.Address = "127.0.0.1:0"
	cfgVal.Device.Hotplug = false
	cfgVal.Motion.PollIntervalMillis = 1
	cfgVal.Motion.MaxWaitSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithLocation replaces or adds a deck location.
func WithLocation(name string, loc config.Location) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Locations[name] = loc
	}
}

// WithStack fills a configured location with count plates of plateType.
func WithStack(name, plateType string, count int, lid bool) ConfigOption {
	return func(b *configBuilder) {
		loc, ok := b.cfg.Locations[name]
		if !ok {
			b.t.Fatalf("unknown location %q", name)
		}
		loc.PlateType = plateType
		loc.Count = count
		loc.HasLid = lid && count > 0
		b.cfg.Locations[name] = loc
	}
}

// WithResourceID ties a location to a ledger location.
func WithResourceID(name, resourceID string) ConfigOption {
	return func(b *configBuilder) {
		loc, ok := b.cfg.Locations[name]
		if !ok {
			b.t.Fatalf("unknown location %q", name)
		}
		loc.ResourceID = resourceID
		b.cfg.Locations[name] = loc
	}
}

// WithLedger selects the ledger backend.
func WithLedger(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Backend = backend
	}
}

// WithStackChecks enables the tower capacity and plate type guards.
func WithStackChecks() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Motion.EnforceStackCapacity = true
	}
}

// WithLockWait bounds how long callers queue for the device.
func WithLockWait(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Motion.LockWaitSeconds = seconds
	}
}
