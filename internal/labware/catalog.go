// Package labware holds the static physical constants of every plate type the
// crane can handle. Offsets are signed Z jog distances tuned on hardware; the
// catalog is built once at startup and never mutated afterwards.
package labware

import (
	"fmt"
	"sort"
	"strings"
)

// Grab identifies which tuned offset a choreography step needs.
type Grab string

const (
	GrabExchange    Grab = "grab_exchange"
	GrabLidExchange Grab = "grab_lid_exchange"
	GrabTower       Grab = "grab_tower"
	GrabLidTower    Grab = "grab_lid_tower"
	GrabLidNest     Grab = "grab_lid_nest"
)

// PlateSpec describes one plate type.
type PlateSpec struct {
	Height          float64 `toml:"height" yaml:"height" json:"height"`
	GrabExchange    int     `toml:"grab_exchange" yaml:"grab_exchange" json:"grab_exchange"`
	GrabLidExchange int     `toml:"grab_lid_exchange" yaml:"grab_lid_exchange" json:"grab_lid_exchange"`
	GrabTower       int     `toml:"grab_tower" yaml:"grab_tower" json:"grab_tower"`
	GrabLidTower    int     `toml:"grab_lid_tower" yaml:"grab_lid_tower" json:"grab_lid_tower"`
	GrabLidNest     int     `toml:"grab_lid_nest" yaml:"grab_lid_nest" json:"grab_lid_nest"`
}

// Offset returns the jog distance for grab.
func (s PlateSpec) Offset(grab Grab) (int, error) {
	switch grab {
	case GrabExchange:
		return s.GrabExchange, nil
	case GrabLidExchange:
		return s.GrabLidExchange, nil
	case GrabTower:
		return s.GrabTower, nil
	case GrabLidTower:
		return s.GrabLidTower, nil
	case GrabLidNest:
		return s.GrabLidNest, nil
	default:
		return 0, fmt.Errorf("unknown grab offset %q", grab)
	}
}

// Catalog is an immutable plate type table.
type Catalog struct {
	specs map[string]PlateSpec
}

// NewCatalog copies specs into a catalog. Type identifiers are trimmed and
// must be non-empty with a positive height.
func NewCatalog(specs map[string]PlateSpec) (*Catalog, error) {
	out := make(map[string]PlateSpec, len(specs))
	for name, spec := range specs {
		key := strings.TrimSpace(name)
		if key == "" {
			return nil, fmt.Errorf("plate type with empty identifier")
		}
		if spec.Height <= 0 {
			return nil, fmt.Errorf("plate type %q: height must be positive", key)
		}
		out[key] = spec
	}
	return &Catalog{specs: out}, nil
}

// Lookup returns the spec for plateType.
func (c *Catalog) Lookup(plateType string) (PlateSpec, bool) {
	if c == nil {
		return PlateSpec{}, false
	}
	spec, ok := c.specs[plateType]
	return spec, ok
}

// Offset resolves a grab offset for plateType.
func (c *Catalog) Offset(plateType string, grab Grab) (int, error) {
	spec, ok := c.Lookup(plateType)
	if !ok {
		return 0, fmt.Errorf("plate type %q not in catalog", plateType)
	}
	return spec.Offset(grab)
}

// Has reports whether plateType is known.
func (c *Catalog) Has(plateType string) bool {
	_, ok := c.Lookup(plateType)
	return ok
}

// Types lists the catalog identifiers in sorted order.
func (c *Catalog) Types() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.specs))
	for name := range c.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultSpecs returns the plate types tuned on the stock crane.
// Exchange offsets are measured downward from Z = -356.5375, tower offsets
// from 10 above the top plate.
func DefaultSpecs() map[string]PlateSpec {
	return map[string]PlateSpec{
		"96_well": {
			Height:          16.2562,
			GrabExchange:    -30,
			GrabLidExchange: -21,
			GrabTower:       -18,
			GrabLidTower:    -13,
			GrabLidNest:     -12,
		},
		"pcr_plate": {
			Height:       15.2762,
			GrabExchange: -28,
			GrabTower:    -17,
		},
	}
}
