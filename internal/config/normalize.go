package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"platecrane/internal/labware"
)

const deviceAddressEnv = "PLATECRANE_DEVICE_ADDRESS"

func (c *Config) normalize(baseDir string) error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDevice()
	c.normalizeMotion()
	c.normalizeLedger()
	if err := c.applyLabwareFile(baseDir); err != nil {
		return err
	}
	c.normalizePlateTypes()
	c.normalizeLocations()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.StateDir, "platecrane.sock")
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LedgerDB) == "" {
		c.Paths.LedgerDB = filepath.Join(c.Paths.StateDir, "ledger.db")
	}
	if c.Paths.LedgerDB, err = expandPath(c.Paths.LedgerDB); err != nil {
		return fmt.Errorf("paths.ledger_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeDevice() {
	c.Device.Transport = strings.ToLower(strings.TrimSpace(c.Device.Transport))
	if c.Device.Transport == "" {
		c.Device.Transport = defaultTransport
	}
	c.Device.SerialDevice = strings.TrimSpace(c.Device.SerialDevice)
	c.Device.Address = strings.TrimSpace(c.Device.Address)
	if c.Device.Address == "" {
		if value, ok := os.LookupEnv(deviceAddressEnv); ok {
			c.Device.Address = strings.TrimSpace(value)
		}
	}
	if c.Device.ReadTimeoutMillis <= 0 {
		c.Device.ReadTimeoutMillis = defaultReadTimeoutMillis
	}
	if c.Device.ReadSize <= 0 {
		c.Device.ReadSize = defaultReadSize
	}
	if c.Device.BaudRate <= 0 {
		c.Device.BaudRate = defaultBaudRate
	}
}

func (c *Config) normalizeMotion() {
	c.Motion.Neutral = strings.TrimSpace(c.Motion.Neutral)
	if c.Motion.Neutral == "" {
		c.Motion.Neutral = "neutral"
	}
	if c.Motion.PollIntervalMillis <= 0 {
		c.Motion.PollIntervalMillis = defaultPollIntervalMs
	}
	if c.Motion.MaxWaitSeconds < 0 {
		c.Motion.MaxWaitSeconds = 0
	}
	if c.Motion.LockWaitSeconds < 0 {
		c.Motion.LockWaitSeconds = 0
	}
}

func (c *Config) normalizeLedger() {
	c.Ledger.Backend = strings.ToLower(strings.TrimSpace(c.Ledger.Backend))
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = defaultLedgerBackend
	}
	c.Ledger.GripperID = strings.TrimSpace(c.Ledger.GripperID)
	if c.Ledger.GripperID == "" {
		c.Ledger.GripperID = defaultGripperID
	}
}

func (c *Config) normalizePlateTypes() {
	normalized := make(map[string]labware.PlateSpec, len(c.PlateTypes))
	for name, spec := range c.PlateTypes {
		normalized[strings.TrimSpace(name)] = spec
	}
	c.PlateTypes = normalized
}

func (c *Config) normalizeLocations() {
	normalized := make(map[string]Location, len(c.Locations))
	for name, loc := range c.Locations {
		loc.Kind = strings.ToLower(strings.TrimSpace(loc.Kind))
		loc.PlateType = strings.TrimSpace(loc.PlateType)
		loc.ResourceID = strings.TrimSpace(loc.ResourceID)
		if loc.Count <= 0 {
			loc.Count = 0
			loc.HasLid = false
		}
		applyKindDefaults(&loc)
		normalized[strings.TrimSpace(name)] = loc
	}
	c.Locations = normalized
}

func applyKindDefaults(loc *Location) {
	switch loc.Kind {
	case KindTower, KindTrash:
		if loc.PlaceDepth == 0 {
			loc.PlaceDepth = -1000
		}
	case KindLidNest:
		if loc.PlaceDepth == 0 {
			loc.PlaceDepth = -400
		}
		if loc.Capacity == 0 {
			loc.Capacity = 1
		}
	case KindExchange:
		if loc.PlaceDepth == 0 {
			loc.PlaceDepth = -380
		}
		if loc.SettleDepth == 0 {
			loc.SettleDepth = -30
		}
		if loc.Capacity == 0 {
			loc.Capacity = 1
		}
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "pretty", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
