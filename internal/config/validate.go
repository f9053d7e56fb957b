package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateMotion(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validatePlateTypes(); err != nil {
		return err
	}
	if err := c.validateLocations(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDevice() error {
	switch c.Device.Transport {
	case TransportUSB:
		if c.Device.VendorID <= 0 || c.Device.ProductID <= 0 {
			return errors.New("device.vendor_id and device.product_id must be set for usb transport")
		}
		if c.Device.OutEndpoint <= 0 || c.Device.InEndpoint <= 0 {
			return errors.New("device.out_endpoint and device.in_endpoint must be set for usb transport")
		}
	case TransportSerial:
		if c.Device.SerialDevice == "" {
			return errors.New("device.serial_device must be set for serial transport")
		}
	case TransportTCP:
		if c.Device.Address == "" {
			return fmt.Errorf("device.address must be set for tcp transport (or set %s)", deviceAddressEnv)
		}
	default:
		return fmt.Errorf("device.transport must be one of usb, serial, tcp (got %q)", c.Device.Transport)
	}
	return nil
}

func (c *Config) validateMotion() error {
	if c.Motion.DefaultSpeed < 0 || c.Motion.DefaultSpeed > 100 {
		return errors.New("motion.default_speed must be between 0 and 100")
	}
	if c.Motion.StackFloorZ >= c.Motion.StackLimitZ {
		return errors.New("motion.stack_floor_z must be below motion.stack_limit_z")
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Backend {
	case LedgerNone, LedgerMemory, LedgerSQLite:
		return nil
	default:
		return fmt.Errorf("ledger.backend must be one of none, memory, sqlite (got %q)", c.Ledger.Backend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}

func (c *Config) validatePlateTypes() error {
	if len(c.PlateTypes) == 0 {
		return errors.New("plate_types must define at least one plate type")
	}
	for _, name := range sortedKeys(c.PlateTypes) {
		if name == "" {
			return errors.New("plate_types contains an empty identifier")
		}
		if c.PlateTypes[name].Height <= 0 {
			return fmt.Errorf("plate_types.%s.height must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateLocations() error {
	counts := map[string]int{}
	for _, name := range sortedKeys(c.Locations) {
		loc := c.Locations[name]
		if name == "" {
			return errors.New("locations contains an empty name")
		}
		switch loc.Kind {
		case KindTower, KindLidNest, KindExchange, KindTrash, KindNeutral:
		default:
			return fmt.Errorf("locations.%s.kind must be one of tower, lid_nest, exchange, trash, neutral (got %q)", name, loc.Kind)
		}
		counts[loc.Kind]++
		if loc.PlateType != "" {
			if _, ok := c.PlateTypes[loc.PlateType]; !ok {
				return fmt.Errorf("locations.%s.plate_type %q is not a known plate type", name, loc.PlateType)
			}
		}
		if loc.Count > 0 && loc.PlateType == "" {
			return fmt.Errorf("locations.%s.plate_type must be set when count is positive", name)
		}
		if loc.Capacity < 0 {
			return fmt.Errorf("locations.%s.capacity must not be negative", name)
		}
		if loc.Capacity > 0 && loc.Count > loc.Capacity {
			return fmt.Errorf("locations.%s.count exceeds capacity %d", name, loc.Capacity)
		}
		if (loc.Kind == KindTrash || loc.Kind == KindNeutral) && loc.Count > 0 {
			return fmt.Errorf("locations.%s: %s locations cannot hold plates", name, loc.Kind)
		}
	}
	for _, kind := range []string{KindNeutral, KindExchange, KindTrash} {
		if counts[kind] != 1 {
			return fmt.Errorf("locations must define exactly one %s location (found %d)", kind, counts[kind])
		}
	}
	neutral, ok := c.Locations[c.Motion.Neutral]
	if !ok || neutral.Kind != KindNeutral {
		return fmt.Errorf("motion.neutral %q must name the neutral location", c.Motion.Neutral)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, strings.TrimSpace(key))
	}
	sort.Strings(keys)
	return keys
}
