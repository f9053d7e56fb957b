package inventory

import "fmt"

// FindMatchingLidNest returns the first lid nest, in priority order, holding
// at least one lid of plateType.
func (m *Model) FindMatchingLidNest(plateType string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.order {
		slot := m.slots[name]
		if slot.Kind == KindLidNest && slot.Count >= 1 && slot.PlateType == plateType {
			return name, true
		}
	}
	return "", false
}

// FindEmptyLidNest returns the first lid nest with nothing in it.
func (m *Model) FindEmptyLidNest() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.order {
		slot := m.slots[name]
		if slot.Kind == KindLidNest && slot.Count == 0 {
			return name, true
		}
	}
	return "", false
}

// HasCapacity reports whether one more plate fits on tower. The stack is
// full once count*height+floor reaches the limit, or at the configured
// capacity.
func (m *Model) HasCapacity(tower string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, err := m.lookup(tower)
	if err != nil {
		return false, err
	}
	if slot.Capacity > 0 && slot.Count >= slot.Capacity {
		return false, nil
	}
	if slot.Kind != KindTower || slot.Count == 0 {
		return true, nil
	}
	spec, ok := m.catalog.Lookup(slot.PlateType)
	if !ok {
		return false, inventoryError("capacity", fmt.Sprintf("%s: unknown plate type %q", tower, slot.PlateType))
	}
	return float64(slot.Count)*spec.Height+m.opts.StackFloorZ < m.opts.StackLimitZ, nil
}
