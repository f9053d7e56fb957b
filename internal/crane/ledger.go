package crane

import (
	"errors"

	"platecrane/internal/inventory"
	"platecrane/internal/ledger"
	"platecrane/internal/logging"
)

// ledgerTake moves the top item of a tracked source slot into the gripper.
func (r *run) ledgerTake(source inventory.Slot) {
	led := r.s.ledger
	if r.err != nil || led == nil || source.ResourceID == "" {
		return
	}
	item, _, err := led.Pop(r.ctx, source.ResourceID)
	if err != nil {
		r.warn("ledger pop from "+source.Name+" failed", err)
		return
	}
	if err := led.Push(r.ctx, r.s.opts.GripperID, item); err != nil {
		r.warn("ledger push to gripper failed", err)
	}
}

// ledgerPlace moves the gripper's item onto target. An untracked target
// drops the item from the ledger; a tracked target with nothing in the
// gripper gets a freshly minted item.
func (r *run) ledgerPlace(target inventory.Slot, plateType string) {
	led := r.s.ledger
	if r.err != nil || led == nil {
		return
	}
	item, _, err := led.Pop(r.ctx, r.s.opts.GripperID)
	switch {
	case errors.Is(err, ledger.ErrEmpty):
		if target.ResourceID == "" {
			return
		}
		item = ledger.NewItem(target.Name, plateType)
		r.logger.Debug("minted ledger item for untracked plate",
			logging.String("item_id", item.ID),
			logging.String(logging.FieldLocation, target.Name),
		)
	case err != nil:
		r.warn("ledger pop from gripper failed", err)
		return
	}
	if target.ResourceID == "" {
		r.logger.Debug("ledger item left tracked locations",
			logging.String("item_id", item.ID),
			logging.String(logging.FieldLocation, target.Name),
		)
		return
	}
	if err := led.Push(r.ctx, target.ResourceID, item); err != nil {
		r.warn("ledger push to "+target.Name+" failed", err)
	}
}
