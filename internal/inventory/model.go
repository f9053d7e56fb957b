// Package inventory tracks what physically sits in every addressable slot of
// the deck and what the gripper is holding. It never talks to the device; the
// choreography engine mutates it right after each motion that changes reality.
package inventory

import (
	"fmt"
	"sort"
	"sync"

	"platecrane/internal/arm"
	"platecrane/internal/config"
	"platecrane/internal/faults"
	"platecrane/internal/labware"
)

// Kind classifies a slot.
type Kind string

const (
	KindTower    Kind = config.KindTower
	KindLidNest  Kind = config.KindLidNest
	KindExchange Kind = config.KindExchange
	KindTrash    Kind = config.KindTrash
	KindNeutral  Kind = config.KindNeutral
)

// Slot is one physical site on the deck.
type Slot struct {
	Name      string       `json:"name"`
	Kind      Kind         `json:"kind"`
	Position  arm.Position `json:"position"`
	PlateType string       `json:"plate_type,omitempty"`
	Count     int          `json:"count"`
	HasLid    bool         `json:"has_lid"`
	// Capacity is the maximum plate count; zero is unbounded.
	Capacity    int    `json:"capacity,omitempty"`
	ResourceID  string `json:"resource_id,omitempty"`
	PlaceDepth  int    `json:"place_depth"`
	SettleDepth int    `json:"settle_depth"`
}

// Empty reports whether nothing sits in the slot.
func (s Slot) Empty() bool {
	return s.Count == 0
}

// Options tunes the stack height guard.
type Options struct {
	StackFloorZ float64
	StackLimitZ float64
}

// Model is the mutable deck state. All methods are safe for concurrent use.
type Model struct {
	mu      sync.RWMutex
	slots   map[string]*Slot
	order   []string
	catalog *labware.Catalog
	opts    Options
	held    *Held
}

// New builds a model from slots. Every referenced plate type must exist in
// catalog; exactly one neutral, exchange and trash slot are required.
func New(slots []Slot, catalog *labware.Catalog, opts Options) (*Model, error) {
	if catalog == nil {
		return nil, fmt.Errorf("inventory: plate catalog required")
	}
	m := &Model{slots: make(map[string]*Slot, len(slots)), catalog: catalog, opts: opts}
	singletons := map[Kind]int{}
	for _, slot := range slots {
		if slot.Name == "" {
			return nil, fmt.Errorf("inventory: slot with empty name")
		}
		if _, dup := m.slots[slot.Name]; dup {
			return nil, fmt.Errorf("inventory: duplicate slot %q", slot.Name)
		}
		if slot.PlateType != "" && !catalog.Has(slot.PlateType) {
			return nil, fmt.Errorf("inventory: slot %q references unknown plate type %q", slot.Name, slot.PlateType)
		}
		if slot.Count < 0 {
			return nil, fmt.Errorf("inventory: slot %q has negative count", slot.Name)
		}
		if slot.Count == 0 {
			slot.HasLid = false
		}
		switch slot.Kind {
		case KindNeutral, KindExchange, KindTrash:
			singletons[slot.Kind]++
		case KindTower, KindLidNest:
		default:
			return nil, fmt.Errorf("inventory: slot %q has unknown kind %q", slot.Name, slot.Kind)
		}
		copied := slot
		m.slots[slot.Name] = &copied
		m.order = append(m.order, slot.Name)
	}
	for _, kind := range []Kind{KindNeutral, KindExchange, KindTrash} {
		if singletons[kind] != 1 {
			return nil, fmt.Errorf("inventory: need exactly one %s slot, found %d", kind, singletons[kind])
		}
	}
	sort.Slice(m.order, func(i, j int) bool { return naturalLess(m.order[i], m.order[j]) })
	return m, nil
}

// FromConfig builds the model from the configured locations.
func FromConfig(cfg *config.Config, catalog *labware.Catalog) (*Model, error) {
	slots := make([]Slot, 0, len(cfg.Locations))
	for name, loc := range cfg.Locations {
		slots = append(slots, Slot{
			Name:        name,
			Kind:        Kind(loc.Kind),
			Position:    loc.Position,
			PlateType:   loc.PlateType,
			Count:       loc.Count,
			HasLid:      loc.HasLid,
			Capacity:    loc.Capacity,
			ResourceID:  loc.ResourceID,
			PlaceDepth:  loc.PlaceDepth,
			SettleDepth: loc.SettleDepth,
		})
	}
	return New(slots, catalog, Options{StackFloorZ: cfg.Motion.StackFloorZ, StackLimitZ: cfg.Motion.StackLimitZ})
}

// Catalog returns the plate catalog the model validates against.
func (m *Model) Catalog() *labware.Catalog {
	return m.catalog
}

// Slot returns a copy of the named slot.
func (m *Model) Slot(name string) (Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, err := m.lookup(name)
	if err != nil {
		return Slot{}, err
	}
	return *slot, nil
}

// Occupancy returns the plate count of name.
func (m *Model) Occupancy(name string) (int, error) {
	slot, err := m.Slot(name)
	return slot.Count, err
}

// PlateType returns the plate type recorded for name.
func (m *Model) PlateType(name string) (string, error) {
	slot, err := m.Slot(name)
	return slot.PlateType, err
}

// HasLid reports the lid flag of name.
func (m *Model) HasLid(name string) (bool, error) {
	slot, err := m.Slot(name)
	return slot.HasLid, err
}

// SlotOfKind returns the single slot of a singleton kind.
func (m *Model) SlotOfKind(kind Kind) (Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.order {
		if m.slots[name].Kind == kind {
			return *m.slots[name], nil
		}
	}
	return Slot{}, inventoryError("lookup", fmt.Sprintf("no %s slot configured", kind))
}

// Names returns slot names of kind in priority order; an empty kind lists all.
func (m *Model) Names(kind Kind) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, name := range m.order {
		if kind == "" || m.slots[name].Kind == kind {
			out = append(out, name)
		}
	}
	return out
}

// Snapshot is a point-in-time copy of the deck.
type Snapshot struct {
	Slots []Slot `json:"slots"`
	Held  *Held  `json:"held,omitempty"`
}

// Snapshot copies every slot in priority order plus the gripper load.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{Slots: make([]Slot, 0, len(m.order))}
	for _, name := range m.order {
		snap.Slots = append(snap.Slots, *m.slots[name])
	}
	if m.held != nil {
		held := *m.held
		snap.Held = &held
	}
	return snap
}

// Set overwrites the contents of a slot after manual intervention on the deck.
func (m *Model) Set(name string, count int, plateType string, hasLid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, err := m.lookup(name)
	if err != nil {
		return err
	}
	if count < 0 {
		return inventoryError("set", fmt.Sprintf("%s: count must not be negative", name))
	}
	if slot.Kind == KindTrash || slot.Kind == KindNeutral {
		return inventoryError("set", fmt.Sprintf("%s: %s slots hold nothing", name, slot.Kind))
	}
	if plateType != "" && !m.catalog.Has(plateType) {
		return inventoryError("set", fmt.Sprintf("unknown plate type %q", plateType))
	}
	if slot.Capacity > 0 && count > slot.Capacity {
		return inventoryError("set", fmt.Sprintf("%s: count %d exceeds capacity %d", name, count, slot.Capacity))
	}
	slot.Count = count
	if plateType != "" {
		slot.PlateType = plateType
	}
	slot.HasLid = hasLid && count > 0
	return nil
}

func (m *Model) lookup(name string) (*Slot, error) {
	slot, ok := m.slots[name]
	if !ok {
		return nil, inventoryError("lookup", fmt.Sprintf("unknown location %q", name))
	}
	return slot, nil
}

func inventoryError(operation, message string) error {
	return faults.Wrap(faults.ErrInventory, "inventory", operation, message, nil)
}
