// Package config loads, normalizes, and validates platecrane configuration data.
//
// It supplies repository defaults (including the deck layout of the stock
// crane), expands user paths, reads TOML files, merges an optional YAML
// labware file, and honours the PLATECRANE_DEVICE_ADDRESS environment
// fallback. Locations and plate types named in a file replace the default
// entry of the same name; every other default entry is kept.
//
// Always obtain settings through this package so the inventory, transport and
// choreography layers receive sanitized locations with per-kind depths filled
// in and clear validation errors up front.
package config
