package crane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"platecrane/internal/arm"
	"platecrane/internal/faults"
	"platecrane/internal/inventory"
	"platecrane/internal/logging"
)

// Jog distances shared by every choreography. Large jogs rely on the
// controller stopping at the axis limit or on contact.
const (
	jogFullUp        = 1000
	jogFullDown      = -1000
	jogTouchBack     = 10
	jogRetractY      = -1000
	lidApproachDepth = -380
	lidReleaseDepth  = -400
)

// Controller speeds used by the choreographies.
const (
	speedTravel   = 100
	speedRetract  = 10
	speedNeutral  = 12
	speedTouch    = 15
	speedPlace    = 5
	speedFine     = 7
	speedStack    = 10
	speedSafeStop = 5
)

// run executes one script. The first failure sticks: later steps become
// no-ops and the script returns run.err.
type run struct {
	s         *Session
	ctx       context.Context
	operation string
	logger    *slog.Logger
	started   time.Time
	commands  int
	warnings  []string
	notes     []string
	err       error
}

func (s *Session) newRun(ctx context.Context, operation string) *run {
	ctx = logging.WithOperation(ctx, operation)
	return &run{
		s:         s,
		ctx:       ctx,
		operation: operation,
		logger:    logging.WithContext(ctx, s.logger),
		started:   time.Now(),
	}
}

func (r *run) fail(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// motion sends a command that moves the arm or gripper. A reply with no
// status line means the read ended while the arm was still moving; only an
// explicit failure code aborts.
func (r *run) motion(command string) {
	if r.err != nil {
		return
	}
	resp, err := r.s.client.Send(r.ctx, command)
	r.commands++
	if err != nil {
		r.fail(err)
		return
	}
	if err := resp.Err(); err != nil {
		r.fail(err)
		return
	}
	if resp.Status == nil {
		r.logger.Debug("no status in motion reply", logging.String(logging.FieldCommand, command))
	}
}

func (r *run) open()  { r.motion("OPEN") }
func (r *run) close() { r.motion("CLOSE") }

func (r *run) speed(n int) {
	r.motion(fmt.Sprintf("SETSPEED %d", n))
}

func (r *run) jog(axis arm.Axis, distance int) {
	if distance == 0 {
		return
	}
	r.motion(fmt.Sprintf("JOG %s,%d", axis, distance))
}

func (r *run) jogZ(distance int) {
	r.jog(arm.AxisZ, distance)
}

// moveTo teaches a temporary point named after the R coordinate, moves to it
// and forgets it again.
func (r *run) moveTo(pos arm.Position) {
	name := "R:" + arm.FormatCoordinate(pos.R)
	r.motion(fmt.Sprintf("LOADPOINT %s, Z:%s, P:%s, Y:%s, R:%s", name,
		arm.FormatCoordinate(pos.Z), arm.FormatCoordinate(pos.P),
		arm.FormatCoordinate(pos.Y), arm.FormatCoordinate(pos.R)))
	r.motion("MOVE " + name)
	r.motion("DELETEPOINT " + name)
}

// above moves over slot at travel height.
func (r *run) above(slot inventory.Slot) {
	pos := slot.Position
	if r.s.opts.TravelHeight != 0 {
		pos = pos.WithZ(r.s.opts.TravelHeight)
	}
	r.moveTo(pos)
}

func (r *run) neutral() {
	if r.err != nil {
		return
	}
	slot, err := r.s.inv.Slot(r.s.opts.Neutral)
	if err != nil {
		r.fail(err)
		return
	}
	r.above(slot)
}

// await blocks until the controller reports ready. A wait that does not
// complete leaves the session unsettled; a reported fault ends the motion.
func (r *run) await() {
	if r.err != nil {
		return
	}
	if err := r.s.poller.AwaitReady(r.ctx); err != nil {
		if !errors.Is(err, faults.ErrDeviceFault) {
			r.s.markUnsettled()
		}
		r.fail(err)
	}
}

func (r *run) phase(p Phase) {
	if r.err != nil {
		return
	}
	r.s.setPhase(p)
}

// retract pulls the arm in and up before travelling to neutral.
func (r *run) retract() {
	r.open()
	r.speed(speedRetract)
	r.jog(arm.AxisY, jogRetractY)
	r.jogZ(jogFullUp)
	r.speed(speedNeutral)
	r.neutral()
	r.await()
	r.phase(PhaseAtNeutral)
}

func (r *run) returnToNeutral() {
	r.neutral()
	r.await()
	r.phase(PhaseAtNeutral)
}

// touchOff lowers the closed gripper onto whatever is below, backs off,
// opens and drops by offset to grip height.
func (r *run) touchOff(offset int) {
	r.jogZ(jogFullDown)
	r.jogZ(jogTouchBack)
	r.open()
	r.jogZ(offset)
}

// update applies an inventory change after the motion that caused it.
func (r *run) update(change func() error) {
	if r.err != nil {
		return
	}
	if err := change(); err != nil {
		r.fail(err)
	}
}

func (r *run) warn(message string, err error) {
	r.warnings = append(r.warnings, fmt.Sprintf("%s: %v", message, err))
	logging.WarnWithContext(r.logger, message, "ledger_update_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "reconcile the ledger with the deck"),
		logging.String(logging.FieldImpact, "inventory counts are correct; item identity may be stale"),
	)
}

func (r *run) note(text string) {
	r.notes = append(r.notes, text)
}

// Result describes a completed operation.
type Result struct {
	Operation string        `json:"operation"`
	Commands  int           `json:"commands"`
	Duration  time.Duration `json:"duration"`
	Notes     []string      `json:"notes,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
}

func (r *run) result() Result {
	return Result{
		Operation: r.operation,
		Commands:  r.commands,
		Duration:  time.Since(r.started),
		Notes:     r.notes,
		Warnings:  r.warnings,
	}
}

// exclusive runs script under the device lock. Guards run first and must not
// touch the device.
func (s *Session) exclusive(ctx context.Context, operation string, guard func() error, script func(*run)) (Result, error) {
	release, err := s.acquire(ctx, operation)
	if err != nil {
		return Result{Operation: operation}, err
	}
	defer release()

	r := s.newRun(ctx, operation)
	if guard != nil {
		if err := guard(); err != nil {
			r.logger.Info("operation refused", logging.Error(err))
			s.finish(operation, err)
			return r.result(), err
		}
	}
	if err := s.settle(r.ctx); err != nil {
		s.finish(operation, err)
		return r.result(), err
	}
	r.logger.Info("operation started")
	script(r)
	res := r.result()
	s.finish(operation, r.err)
	if r.err != nil {
		attrs := []logging.Attr{
			logging.Error(r.err),
			logging.String("kind", string(faults.KindOf(r.err))),
			logging.Int("commands", r.commands),
		}
		if errors.Is(r.err, faults.ErrInventory) {
			attrs = append(attrs, logging.String(logging.FieldErrorHint, "inspect the deck and correct the inventory"))
		}
		logging.ErrorWithContext(r.logger, "operation failed", "operation_failed", attrs...)
		return res, r.err
	}
	r.logger.Info("operation completed",
		logging.Int("commands", res.Commands),
		logging.Duration("duration", res.Duration),
		logging.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}
