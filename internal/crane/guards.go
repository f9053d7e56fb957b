package crane

import (
	"fmt"

	"platecrane/internal/faults"
	"platecrane/internal/inventory"
	"platecrane/internal/labware"
)

func violation(operation, format string, args ...any) error {
	return faults.Wrap(faults.ErrInventory, "crane", operation, fmt.Sprintf(format, args...), nil)
}

func (s *Session) requireEmptyGripper(operation string) error {
	if held, ok := s.inv.Held(); ok {
		return violation(operation, "gripper still holds a %s from %s; clear it before continuing", held.Kind, held.From)
	}
	return nil
}

// slotOf resolves name and checks its kind.
func (s *Session) slotOf(operation, name string, kinds ...inventory.Kind) (inventory.Slot, error) {
	slot, err := s.inv.Slot(name)
	if err != nil {
		return inventory.Slot{}, err
	}
	for _, kind := range kinds {
		if slot.Kind == kind {
			return slot, nil
		}
	}
	return inventory.Slot{}, violation(operation, "%s is a %s location", name, slot.Kind)
}

func (s *Session) singleton(kind inventory.Kind) (inventory.Slot, error) {
	return s.inv.SlotOfKind(kind)
}

// checkRoom verifies that a plate of plateType can be released onto target.
// Explicit capacity is always honoured; the stack height and type checks
// apply only when stack checking is enabled.
func (s *Session) checkRoom(operation string, target inventory.Slot, plateType string) error {
	if target.Capacity > 0 && target.Count >= target.Capacity {
		return violation(operation, "%s is full (%d of %d)", target.Name, target.Count, target.Capacity)
	}
	if !s.opts.EnforceStackCapacity || target.Kind != inventory.KindTower {
		return nil
	}
	ok, err := s.inv.HasCapacity(target.Name)
	if err != nil {
		return err
	}
	if !ok {
		return violation(operation, "%s stack is at its height limit", target.Name)
	}
	if target.Count > 0 && target.PlateType != plateType {
		return violation(operation, "%s holds %s plates, not %s", target.Name, target.PlateType, plateType)
	}
	return nil
}

func (s *Session) grabOffset(operation, plateType string, grab labware.Grab) (int, error) {
	offset, err := s.inv.Catalog().Offset(plateType, grab)
	if err != nil {
		return 0, faults.Wrap(faults.ErrConfiguration, "crane", operation, string(grab), err)
	}
	return offset, nil
}
