package config

import (
	"platecrane/internal/arm"
	"platecrane/internal/labware"
)

const (
	defaultConfigPath        = "~/.config/platecrane/config.toml"
	defaultStateDir          = "~/.local/share/platecrane"
	defaultTransport         = TransportUSB
	defaultVendorID          = 0x7513
	defaultProductID         = 0x0002
	defaultOutEndpoint       = 0x04
	defaultInEndpoint        = 0x83
	defaultBaudRate          = 9600
	defaultReadTimeoutMillis = 5000
	defaultReadSize          = 200
	defaultTravelHeight      = 23.5188
	defaultSpeed             = 100
	defaultPollIntervalMs    = 100
	defaultMaxWaitSeconds    = 120
	defaultStackFloorZ       = -421.8625
	defaultStackLimitZ       = -50
	defaultLedgerBackend     = LedgerNone
	defaultGripperID         = "platecrane.gripper"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Transport names.
const (
	TransportUSB    = "usb"
	TransportSerial = "serial"
	TransportTCP    = "tcp"
)

// Ledger backends.
const (
	LedgerNone   = "none"
	LedgerMemory = "memory"
	LedgerSQLite = "sqlite"
)

// Location kinds.
const (
	KindTower    = "tower"
	KindLidNest  = "lid_nest"
	KindExchange = "exchange"
	KindTrash    = "trash"
	KindNeutral  = "neutral"
)

// Default returns a Config populated with repository defaults, including the
// deck layout of the stock crane.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Device: Device{
			Transport:         defaultTransport,
			VendorID:          defaultVendorID,
			ProductID:         defaultProductID,
			OutEndpoint:       defaultOutEndpoint,
			InEndpoint:        defaultInEndpoint,
			BaudRate:          defaultBaudRate,
			ReadTimeoutMillis: defaultReadTimeoutMillis,
			ReadSize:          defaultReadSize,
			Hotplug:           true,
		},
		Motion: Motion{
			Neutral:            "neutral",
			DefaultSpeed:       defaultSpeed,
			TravelHeight:       defaultTravelHeight,
			PollIntervalMillis: defaultPollIntervalMs,
			MaxWaitSeconds:     defaultMaxWaitSeconds,
			StackFloorZ:        defaultStackFloorZ,
			StackLimitZ:        defaultStackLimitZ,
		},
		Ledger: Ledger{
			Backend:   defaultLedgerBackend,
			GripperID: defaultGripperID,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		PlateTypes: labware.DefaultSpecs(),
		Locations:  DefaultLocations(),
	}
}

// DefaultLocations returns the deck layout taught on the stock crane.
func DefaultLocations() map[string]Location {
	tower := func(r, y, p float64, plateType string, count int, lid bool) Location {
		return Location{
			Kind:       KindTower,
			Position:   arm.Position{Z: defaultTravelHeight, R: r, Y: y, P: p},
			PlateType:  plateType,
			Count:      count,
			HasLid:     lid,
			PlaceDepth: -1000,
		}
	}
	nest := func(r, y, p float64) Location {
		return Location{
			Kind:       KindLidNest,
			Position:   arm.Position{Z: defaultTravelHeight, R: r, Y: y, P: p},
			PlateType:  "96_well",
			Capacity:   1,
			PlaceDepth: -400,
		}
	}
	return map[string]Location{
		"tower1":   tower(133.5, 171.9895, 8.6648, "pcr_plate", 1, true),
		"tower2":   tower(151.3, 171.4872, 8.4943, "96_well", 0, false),
		"tower3":   tower(169.5, 171.4810, 12.4716, "96_well", 0, false),
		"tower4":   tower(187.5, 169.4470, 5.9091, "96_well", 0, false),
		"tower5":   tower(205.4, 171.2082, 10.8807, "96_well", 0, false),
		"lidnest1": nest(169.2706, 25.7535, 10.2159),
		"lidnest2": nest(201.2665, 25.7535, 8.0909),
		"exchange": {
			Kind:        KindExchange,
			Position:    arm.Position{Z: defaultTravelHeight, R: 109.2741, Y: 32.7484, P: 100.8955},
			PlateType:   "96_well",
			Capacity:    1,
			PlaceDepth:  -380,
			SettleDepth: -30,
		},
		"neutral": {
			Kind:     KindNeutral,
			Position: arm.Position{Z: defaultTravelHeight, R: 109.2741, Y: 32.7484, P: 98.2955},
		},
		"trash": {
			Kind:       KindTrash,
			Position:   arm.Position{Z: defaultTravelHeight, R: 259.2688, Y: 62.7497, P: 98.2670},
			PlaceDepth: -1000,
		},
	}
}
