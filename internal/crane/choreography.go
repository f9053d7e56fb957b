package crane

import (
	"context"

	"platecrane/internal/inventory"
	"platecrane/internal/labware"
)

// GetPlateOptions tunes GetPlate.
type GetPlateOptions struct {
	// RemoveLid strips the lid once the plate sits on the exchange.
	RemoveLid bool
	// Trash sends the stripped lid to the trash instead of a lid nest.
	Trash bool
}

type lidRemoval struct {
	skip     bool
	exchange inventory.Slot
	dest     inventory.Slot
	offset   int
}

type lidReplacement struct {
	nest     inventory.Slot
	exchange inventory.Slot
	offset   int
}

// GetPlate carries the top plate of source onto target.
func (s *Session) GetPlate(ctx context.Context, source, target string, opts GetPlateOptions) (Result, error) {
	const op = "get_plate"
	var (
		from, to inventory.Slot
		grab     int
		lid      lidRemoval
	)
	guard := func() error {
		if err := s.requireEmptyGripper(op); err != nil {
			return err
		}
		var err error
		if from, err = s.slotOf(op, source, inventory.KindTower, inventory.KindExchange); err != nil {
			return err
		}
		if to, err = s.slotOf(op, target, inventory.KindTower, inventory.KindExchange); err != nil {
			return err
		}
		if from.Name == to.Name {
			return violation(op, "source and target are both %s", source)
		}
		if from.Count < 1 {
			return violation(op, "%s is empty", source)
		}
		if err := s.checkRoom(op, to, from.PlateType); err != nil {
			return err
		}
		kind := labware.GrabTower
		if from.Kind == inventory.KindExchange {
			kind = labware.GrabExchange
		}
		if grab, err = s.grabOffset(op, from.PlateType, kind); err != nil {
			return err
		}
		if !opts.RemoveLid {
			return nil
		}
		if to.Kind != inventory.KindExchange {
			return violation(op, "lid removal requires the exchange as target, not %s", target)
		}
		// The exchange will hold the lifted plate, so plan against its lid.
		arriving := to
		arriving.Count, arriving.PlateType, arriving.HasLid = 1, from.PlateType, from.HasLid
		lid, err = s.planLidRemoval(op, arriving, opts.Trash)
		return err
	}
	return s.exclusive(ctx, op, guard, func(r *run) {
		r.retract()
		r.speed(speedTravel)
		r.above(from)
		r.await()
		r.phase(PhaseAtSource)

		r.close()
		r.speed(speedTouch)
		r.touchOff(grab)
		r.close()
		r.phase(PhaseGripping)
		r.update(func() error { _, err := s.inv.TakePlate(from.Name); return err })
		r.ledgerTake(from)

		r.speed(speedTravel)
		r.jogZ(jogFullUp)
		r.above(to)
		r.phase(PhaseAtTarget)
		r.jogZ(to.PlaceDepth)
		r.speed(speedPlace)
		r.jogZ(to.SettleDepth)
		r.open()
		r.update(func() error { return s.inv.PlacePlate(to.Name) })
		r.phase(PhaseReleased)
		r.ledgerPlace(to, from.PlateType)
		r.speed(speedTravel)
		r.jogZ(jogFullUp)

		if opts.RemoveLid {
			r.removeLid(lid)
		}
		r.returnToNeutral()
	})
}

// planLidRemoval picks where the exchange lid goes. A plate without a lid
// needs nothing.
func (s *Session) planLidRemoval(op string, exchange inventory.Slot, trash bool) (lidRemoval, error) {
	plan := lidRemoval{exchange: exchange}
	if exchange.Count < 1 || !exchange.HasLid {
		plan.skip = true
		return plan, nil
	}
	var err error
	if trash {
		if plan.dest, err = s.singleton(inventory.KindTrash); err != nil {
			return plan, err
		}
	} else {
		name, ok := s.inv.FindEmptyLidNest()
		if !ok {
			return plan, violation(op, "no available nest for the exchange lid")
		}
		if plan.dest, err = s.inv.Slot(name); err != nil {
			return plan, err
		}
	}
	plan.offset, err = s.grabOffset(op, exchange.PlateType, labware.GrabLidExchange)
	return plan, err
}

// RemoveLid lifts the lid off the exchange plate into the first empty lid
// nest, or into the trash.
func (s *Session) RemoveLid(ctx context.Context, trash bool) (Result, error) {
	const op = "remove_lid"
	var plan lidRemoval
	guard := func() error {
		if err := s.requireEmptyGripper(op); err != nil {
			return err
		}
		exchange, err := s.singleton(inventory.KindExchange)
		if err != nil {
			return err
		}
		plan, err = s.planLidRemoval(op, exchange, trash)
		return err
	}
	return s.exclusive(ctx, op, guard, func(r *run) {
		r.removeLid(plan)
	})
}

func (r *run) removeLid(plan lidRemoval) {
	if r.err != nil {
		return
	}
	if plan.skip {
		r.note("no lid on the exchange plate")
		return
	}
	r.speed(speedTravel)
	r.open()
	r.above(plan.exchange)
	r.await()
	r.phase(PhaseAtSource)

	r.jogZ(plan.exchange.PlaceDepth)
	r.speed(speedFine)
	r.jogZ(plan.offset)
	r.close()
	r.phase(PhaseGripping)
	r.update(func() error { _, err := r.s.inv.TakeLid(plan.exchange.Name); return err })

	r.speed(speedTravel)
	r.jogZ(jogFullUp)
	r.await()
	r.above(plan.dest)
	r.await()
	r.phase(PhaseAtTarget)
	r.jogZ(plan.dest.PlaceDepth)
	r.open()
	r.update(func() error { return r.s.inv.PlaceLid(plan.dest.Name) })
	r.phase(PhaseReleased)
	r.jogZ(jogFullUp)
	r.returnToNeutral()
}

// planLidReplacement finds a lid for the exchange plate.
func (s *Session) planLidReplacement(op string) (lidReplacement, error) {
	var plan lidReplacement
	exchange, err := s.singleton(inventory.KindExchange)
	if err != nil {
		return plan, err
	}
	if exchange.Count < 1 {
		return plan, violation(op, "no plate on %s", exchange.Name)
	}
	if exchange.HasLid {
		return plan, violation(op, "plate on %s already has a lid", exchange.Name)
	}
	name, ok := s.inv.FindMatchingLidNest(exchange.PlateType)
	if !ok {
		return plan, violation(op, "no lid available for %s plates", exchange.PlateType)
	}
	if plan.nest, err = s.inv.Slot(name); err != nil {
		return plan, err
	}
	plan.exchange = exchange
	plan.offset, err = s.grabOffset(op, exchange.PlateType, labware.GrabLidNest)
	return plan, err
}

// ReplaceLid takes a matching lid from a nest and seats it on the exchange
// plate.
func (s *Session) ReplaceLid(ctx context.Context) (Result, error) {
	const op = "replace_lid"
	var plan lidReplacement
	guard := func() error {
		if err := s.requireEmptyGripper(op); err != nil {
			return err
		}
		var err error
		plan, err = s.planLidReplacement(op)
		return err
	}
	return s.exclusive(ctx, op, guard, func(r *run) {
		r.replaceLid(plan)
	})
}

func (r *run) replaceLid(plan lidReplacement) {
	r.speed(speedTravel)
	r.open()
	r.above(plan.nest)
	r.await()
	r.phase(PhaseAtSource)

	r.close()
	r.jogZ(lidApproachDepth)
	r.speed(speedFine)
	r.touchOff(plan.offset)
	r.close()
	r.phase(PhaseGripping)
	r.update(func() error { _, err := r.s.inv.TakeLid(plan.nest.Name); return err })

	r.speed(speedTravel)
	r.jogZ(jogFullUp)
	r.await()
	r.above(plan.exchange)
	r.await()
	r.phase(PhaseAtTarget)
	r.jogZ(lidReleaseDepth)
	r.open()
	r.update(func() error { return r.s.inv.PlaceLid(plan.exchange.Name) })
	r.phase(PhaseReleased)
	r.jogZ(jogFullUp)
	r.await()
	r.returnToNeutral()
}

// PlateToStack moves the exchange plate onto tower, lidding it first when
// addLid is set and it has none.
func (s *Session) PlateToStack(ctx context.Context, tower string, addLid bool) (Result, error) {
	const op = "plate_to_stack"
	var (
		exchange, to inventory.Slot
		grab         int
		lid          *lidReplacement
	)
	guard := func() error {
		if err := s.requireEmptyGripper(op); err != nil {
			return err
		}
		var err error
		if to, err = s.slotOf(op, tower, inventory.KindTower); err != nil {
			return err
		}
		if exchange, err = s.singleton(inventory.KindExchange); err != nil {
			return err
		}
		if exchange.Count < 1 {
			return violation(op, "no plate on %s", exchange.Name)
		}
		if addLid && !exchange.HasLid {
			plan, err := s.planLidReplacement(op)
			if err != nil {
				return err
			}
			lid = &plan
		}
		if err := s.checkRoom(op, to, exchange.PlateType); err != nil {
			return err
		}
		grab, err = s.grabOffset(op, exchange.PlateType, labware.GrabExchange)
		return err
	}
	return s.exclusive(ctx, op, guard, func(r *run) {
		r.retract()
		if lid != nil {
			r.replaceLid(*lid)
		}
		r.open()
		r.above(exchange)
		r.await()
		r.phase(PhaseAtSource)

		r.speed(speedTravel)
		r.jogZ(exchange.PlaceDepth)
		r.jogZ(grab)
		r.close()
		r.phase(PhaseGripping)
		r.update(func() error { _, err := s.inv.TakePlate(exchange.Name); return err })
		r.ledgerTake(exchange)

		r.jogZ(jogFullUp)
		r.await()
		r.above(to)
		r.await()
		r.phase(PhaseAtTarget)
		r.speed(speedStack)
		r.jogZ(to.PlaceDepth)
		r.open()
		r.update(func() error { return s.inv.PlacePlate(to.Name) })
		r.phase(PhaseReleased)
		r.ledgerPlace(to, exchange.PlateType)

		r.speed(speedTravel)
		r.jogZ(jogFullUp)
		r.await()
		r.returnToNeutral()
	})
}

// PlateToTrash discards the exchange plate, lidding it first when addLid is
// set and it has none.
func (s *Session) PlateToTrash(ctx context.Context, addLid bool) (Result, error) {
	const op = "plate_to_trash"
	var (
		exchange, trash inventory.Slot
		grab            int
		lid             *lidReplacement
	)
	guard := func() error {
		if err := s.requireEmptyGripper(op); err != nil {
			return err
		}
		var err error
		if exchange, err = s.singleton(inventory.KindExchange); err != nil {
			return err
		}
		if trash, err = s.singleton(inventory.KindTrash); err != nil {
			return err
		}
		if exchange.Count < 1 {
			return violation(op, "no plate on %s", exchange.Name)
		}
		if addLid && !exchange.HasLid {
			plan, err := s.planLidReplacement(op)
			if err != nil {
				return err
			}
			lid = &plan
		}
		grab, err = s.grabOffset(op, exchange.PlateType, labware.GrabExchange)
		return err
	}
	return s.exclusive(ctx, op, guard, func(r *run) {
		r.retract()
		if lid != nil {
			r.replaceLid(*lid)
		}
		r.speed(speedTravel)
		r.open()
		r.above(exchange)
		r.await()
		r.phase(PhaseAtSource)

		r.jogZ(exchange.PlaceDepth)
		r.speed(speedFine)
		r.jogZ(grab)
		r.close()
		r.phase(PhaseGripping)
		r.update(func() error { _, err := s.inv.TakePlate(exchange.Name); return err })
		r.ledgerTake(exchange)

		r.speed(speedTravel)
		r.jogZ(jogFullUp)
		r.await()
		r.above(trash)
		r.await()
		r.phase(PhaseAtTarget)
		r.jogZ(trash.PlaceDepth)
		r.open()
		r.update(func() error { return s.inv.PlacePlate(trash.Name) })
		r.phase(PhaseReleased)
		r.ledgerPlace(trash, exchange.PlateType)

		r.jogZ(jogFullUp)
		r.await()
		r.returnToNeutral()
	})
}

// LidnestToTrash discards the top lid of nest.
func (s *Session) LidnestToTrash(ctx context.Context, nest string) (Result, error) {
	const op = "lidnest_to_trash"
	var (
		from, trash inventory.Slot
		grab        int
	)
	guard := func() error {
		if err := s.requireEmptyGripper(op); err != nil {
			return err
		}
		var err error
		if from, err = s.slotOf(op, nest, inventory.KindLidNest); err != nil {
			return err
		}
		if from.Count < 1 {
			return violation(op, "%s holds no lid", nest)
		}
		if trash, err = s.singleton(inventory.KindTrash); err != nil {
			return err
		}
		grab, err = s.grabOffset(op, from.PlateType, labware.GrabLidNest)
		return err
	}
	return s.exclusive(ctx, op, guard, func(r *run) {
		r.retract()
		r.speed(speedTravel)
		r.close()
		r.above(from)
		r.await()
		r.phase(PhaseAtSource)

		r.jogZ(lidApproachDepth)
		r.speed(speedFine)
		r.touchOff(grab)
		r.close()
		r.phase(PhaseGripping)
		r.update(func() error { _, err := s.inv.TakeLid(from.Name); return err })

		r.speed(speedTravel)
		r.jogZ(jogFullUp)
		r.await()
		r.above(trash)
		r.await()
		r.phase(PhaseAtTarget)
		r.jogZ(trash.PlaceDepth)
		r.open()
		r.update(func() error { return s.inv.PlaceLid(trash.Name) })
		r.phase(PhaseReleased)
		r.jogZ(jogFullUp)
		r.await()
		r.returnToNeutral()
	})
}
