package inventory

import "fmt"

// LoadKind is what the gripper can carry.
type LoadKind string

const (
	LoadPlate LoadKind = "plate"
	LoadLid   LoadKind = "lid"
)

// Held describes the gripper's load.
type Held struct {
	Kind      LoadKind `json:"kind"`
	PlateType string   `json:"plate_type,omitempty"`
	HasLid    bool     `json:"has_lid,omitempty"`
	From      string   `json:"from"`
}

// Held returns the gripper load, if any.
func (m *Model) Held() (Held, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.held == nil {
		return Held{}, false
	}
	return *m.held, true
}

// ClearHeld forgets the gripper load after an operator removed it by hand.
func (m *Model) ClearHeld() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = nil
}

// TakePlate records that the top plate of name is now in the gripper.
func (m *Model) TakePlate(name string) (Held, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, err := m.lookup(name)
	if err != nil {
		return Held{}, err
	}
	if m.held != nil {
		return Held{}, inventoryError("take plate", fmt.Sprintf("gripper already holds a %s from %s", m.held.Kind, m.held.From))
	}
	if slot.Count < 1 {
		return Held{}, inventoryError("take plate", fmt.Sprintf("%s is empty", name))
	}
	held := Held{Kind: LoadPlate, PlateType: slot.PlateType, HasLid: slot.HasLid, From: name}
	slot.Count--
	if slot.Count == 0 {
		slot.HasLid = false
	}
	m.held = &held
	return held, nil
}

// PlacePlate records that the held plate now sits on name. Placing on the
// trash discards it.
func (m *Model) PlacePlate(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, err := m.lookup(name)
	if err != nil {
		return err
	}
	if m.held == nil || m.held.Kind != LoadPlate {
		return inventoryError("place plate", "gripper holds no plate")
	}
	if slot.Kind == KindTrash {
		m.held = nil
		return nil
	}
	if slot.Kind == KindNeutral || slot.Kind == KindLidNest {
		return inventoryError("place plate", fmt.Sprintf("%s cannot hold plates", name))
	}
	if slot.Capacity > 0 && slot.Count >= slot.Capacity {
		return inventoryError("place plate", fmt.Sprintf("%s is full", name))
	}
	// A stack keeps the type of the plates already in it.
	if slot.Count == 0 {
		slot.PlateType = m.held.PlateType
	}
	slot.Count++
	slot.HasLid = m.held.HasLid
	m.held = nil
	return nil
}

// TakeLid records that a lid left name for the gripper: the exchange plate's
// lid, or the top lid of a lid nest.
func (m *Model) TakeLid(name string) (Held, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, err := m.lookup(name)
	if err != nil {
		return Held{}, err
	}
	if m.held != nil {
		return Held{}, inventoryError("take lid", fmt.Sprintf("gripper already holds a %s from %s", m.held.Kind, m.held.From))
	}
	held := Held{Kind: LoadLid, PlateType: slot.PlateType, From: name}
	switch slot.Kind {
	case KindLidNest:
		if slot.Count < 1 {
			return Held{}, inventoryError("take lid", fmt.Sprintf("%s holds no lid", name))
		}
		slot.Count--
	case KindExchange, KindTower:
		if slot.Count < 1 || !slot.HasLid {
			return Held{}, inventoryError("take lid", fmt.Sprintf("%s has no lidded plate", name))
		}
		slot.HasLid = false
	default:
		return Held{}, inventoryError("take lid", fmt.Sprintf("%s holds no lids", name))
	}
	m.held = &held
	return held, nil
}

// PlaceLid records that the held lid now sits on name: a lid nest, the
// exchange plate, or the trash.
func (m *Model) PlaceLid(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, err := m.lookup(name)
	if err != nil {
		return err
	}
	if m.held == nil || m.held.Kind != LoadLid {
		return inventoryError("place lid", "gripper holds no lid")
	}
	switch slot.Kind {
	case KindTrash:
	case KindLidNest:
		if slot.Capacity > 0 && slot.Count >= slot.Capacity {
			return inventoryError("place lid", fmt.Sprintf("%s is full", name))
		}
		slot.Count++
		slot.PlateType = m.held.PlateType
	case KindExchange, KindTower:
		if slot.Count < 1 || slot.HasLid {
			return inventoryError("place lid", fmt.Sprintf("%s has no unlidded plate", name))
		}
		slot.HasLid = true
	default:
		return inventoryError("place lid", fmt.Sprintf("%s cannot hold a lid", name))
	}
	m.held = nil
	return nil
}

// Discard drops whatever the gripper holds into the unmodelled trash sink.
func (m *Model) Discard() (Held, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		return Held{}, false
	}
	held := *m.held
	m.held = nil
	return held, true
}
