package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"platecrane/internal/arm"
	"platecrane/internal/labware"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state directory and socket configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	SocketPath string `toml:"socket_path"`
	LedgerDB   string `toml:"ledger_db"`
}

// Device describes how to reach the crane controller.
type Device struct {
	// Transport is one of "usb", "serial" or "tcp".
	Transport         string `toml:"transport"`
	VendorID          int    `toml:"vendor_id"`
	ProductID         int    `toml:"product_id"`
	Interface         int    `toml:"interface"`
	OutEndpoint       int    `toml:"out_endpoint"`
	InEndpoint        int    `toml:"in_endpoint"`
	SerialDevice      string `toml:"serial_device"`
	BaudRate          int    `toml:"baud_rate"`
	Address           string `toml:"address"`
	ReadTimeoutMillis int    `toml:"read_timeout_ms"`
	ReadSize          int    `toml:"read_size"`
	Hotplug           bool   `toml:"hotplug"`
}

// Motion contains the choreography tuning knobs.
type Motion struct {
	// Neutral names the location every choreography starts and ends at.
	Neutral string `toml:"neutral"`
	// DefaultSpeed is applied once when a session attaches to the device.
	DefaultSpeed int `toml:"default_speed"`
	// TravelHeight is the Z used for every transit move between slots.
	TravelHeight       float64 `toml:"travel_height"`
	PollIntervalMillis int     `toml:"poll_interval_ms"`
	// MaxWaitSeconds bounds a completion wait; 0 waits forever.
	MaxWaitSeconds int `toml:"max_wait_seconds"`
	// LockWaitSeconds bounds how long a caller queues behind another
	// operation; 0 waits until the caller's context ends.
	LockWaitSeconds      int     `toml:"lock_wait_seconds"`
	EnforceStackCapacity bool    `toml:"enforce_stack_capacity"`
	StackFloorZ          float64 `toml:"stack_floor_z"`
	StackLimitZ          float64 `toml:"stack_limit_z"`
}

// Ledger selects the resource ledger backend.
type Ledger struct {
	// Backend is one of "none", "memory" or "sqlite".
	Backend   string `toml:"backend"`
	GripperID string `toml:"gripper_id"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format  string `toml:"format"`
	Level   string `toml:"level"`
	Journal bool   `toml:"journal"`
}

// Location is the static description of one addressable slot.
type Location struct {
	Kind        string       `toml:"kind" yaml:"kind"`
	Position    arm.Position `toml:"position" yaml:"position"`
	PlateType   string       `toml:"plate_type" yaml:"plate_type"`
	Count       int          `toml:"count" yaml:"count"`
	HasLid      bool         `toml:"has_lid" yaml:"has_lid"`
	Capacity    int          `toml:"capacity" yaml:"capacity"`
	ResourceID  string       `toml:"resource_id" yaml:"resource_id"`
	PlaceDepth  int          `toml:"place_depth" yaml:"place_depth"`
	SettleDepth int          `toml:"settle_depth" yaml:"settle_depth"`
}

// Config encapsulates all configuration values for the crane daemon and CLI.
//
// Configuration sections by subsystem:
//   - Paths: state directory, IPC socket, ledger database
//   - Device: controller transport and USB/serial/TCP parameters
//   - Motion: travel height, completion polling, stack capacity guard
//   - Ledger: resource ledger backend
//   - Logging: log format, level and journal output
//   - PlateTypes / Locations: labware catalog and deck layout, optionally
//     replaced entry by entry from a YAML labware file
type Config struct {
	Paths       Paths                        `toml:"paths"`
	Device      Device                       `toml:"device"`
	Motion      Motion                       `toml:"motion"`
	Ledger      Ledger                       `toml:"ledger"`
	Logging     Logging                      `toml:"logging"`
	LabwareFile string                       `toml:"labware_file"`
	PlateTypes  map[string]labware.PlateSpec `toml:"plate_types"`
	Locations   map[string]Location          `toml:"locations"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Plate types and locations named in the
// file replace the default entry of the same name; unnamed defaults remain.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		defaultTypes, defaultLocations := cfg.PlateTypes, cfg.Locations
		cfg.PlateTypes, cfg.Locations = nil, nil

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		cfg.PlateTypes = mergeMissing(cfg.PlateTypes, defaultTypes)
		cfg.Locations = mergeMissing(cfg.Locations, defaultLocations)
	}

	if err := cfg.normalize(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func mergeMissing[V any](dst, defaults map[string]V) map[string]V {
	if dst == nil {
		dst = make(map[string]V, len(defaults))
	}
	for name, value := range defaults {
		if _, ok := dst[name]; !ok {
			dst[name] = value
		}
	}
	return dst
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("platecrane.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, filepath.Dir(c.Paths.SocketPath)}
	if c.Ledger.Backend == LedgerSQLite {
		dirs = append(dirs, filepath.Dir(c.Paths.LedgerDB))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "platecraned.lock")
}

// ReadTimeout returns the per-read transport timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Device.ReadTimeoutMillis) * time.Millisecond
}

// PollInterval returns the completion poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Motion.PollIntervalMillis) * time.Millisecond
}

// MaxWait returns the completion wait ceiling; zero means unbounded.
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.Motion.MaxWaitSeconds) * time.Second
}

// LockWait returns how long callers queue for the device; zero means unbounded.
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Motion.LockWaitSeconds) * time.Second
}

// Catalog builds the immutable plate type catalog.
func (c *Config) Catalog() (*labware.Catalog, error) {
	return labware.NewCatalog(c.PlateTypes)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
