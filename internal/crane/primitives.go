package crane

import (
	"context"
	"fmt"
	"strings"

	"platecrane/internal/arm"
	"platecrane/internal/faults"
	"platecrane/internal/logging"
	"platecrane/internal/protocol"
)

// Query is a read-only controller request answered with a single payload.
type Query string

const (
	QueryVersion          Query = "VERSION"
	QueryConfig           Query = "GETCONFIG"
	QueryGripperLength    Query = "GETGRIPPERLENGTH"
	QueryCollapseDistance Query = "GETCOLLAPSEDISTANCE"
	QueryStepsPerUnit     Query = "GETSTEPSPERUNIT"
	QueryGripperOpen      Query = "GETGRIPPERISOPEN"
	QueryGripperClosed    Query = "GETGRIPPERISCLOSED"
	QueryPlatePresent     Query = "GETPLATEPRESENT"
	QueryPoints           Query = "LISTPOINTS"
)

// Queries lists every supported query.
func Queries() []Query {
	return []Query{
		QueryVersion, QueryConfig, QueryGripperLength, QueryCollapseDistance,
		QueryStepsPerUnit, QueryGripperOpen, QueryGripperClosed, QueryPlatePresent, QueryPoints,
	}
}

// ParseQuery accepts a query by command or by its lower-case short name
// ("version", "gripper-length", ...).
func ParseQuery(value string) (Query, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(value), "-", ""))
	for _, q := range Queries() {
		if string(q) == normalized || string(q) == "GET"+normalized || (q == QueryPoints && normalized == "POINTS") {
			return q, nil
		}
	}
	return "", faults.Wrap(faults.ErrConfiguration, "crane", "query", fmt.Sprintf("unknown query %q", value), nil)
}

// Status asks the controller for its motion state and returns the refreshed
// device view. Apart from the timestamp and success counter, repeating it on
// an idle arm returns the same answer.
func (s *Session) Status(ctx context.Context) (protocol.StateSnapshot, error) {
	release, err := s.acquire(ctx, "status")
	if err != nil {
		return s.client.State().Snapshot(), err
	}
	defer release()
	return s.poller.Query(ctx)
}

// Position queries the current pose.
func (s *Session) Position(ctx context.Context) (arm.Position, error) {
	release, err := s.acquire(ctx, "position")
	if err != nil {
		return arm.Position{}, err
	}
	defer release()
	return s.position(ctx)
}

func (s *Session) position(ctx context.Context) (arm.Position, error) {
	resp, err := s.client.Send(ctx, "GETPOS")
	if err != nil {
		return arm.Position{}, err
	}
	if err := resp.Err(); err != nil {
		return arm.Position{}, err
	}
	pos, err := resp.Position()
	if err != nil {
		return arm.Position{}, err
	}
	s.client.State().SetPosition(pos)
	return pos, nil
}

// Query sends a read-only request and returns its payload.
func (s *Session) Query(ctx context.Context, q Query) (string, error) {
	if _, err := ParseQuery(string(q)); err != nil {
		return "", err
	}
	release, err := s.acquire(ctx, "query")
	if err != nil {
		return "", err
	}
	defer release()
	resp, err := s.client.Send(ctx, string(q))
	if err != nil {
		return "", err
	}
	return resp.Payload()
}

// Home drives every axis to its reference and then parks at neutral.
func (s *Session) Home(ctx context.Context) (Result, error) {
	return s.exclusive(ctx, "home", nil, func(r *run) {
		r.motion("HOME")
		r.await()
		r.returnToNeutral()
	})
}

// Reset restarts the controller at a safe speed.
func (s *Session) Reset(ctx context.Context) (Result, error) {
	return s.exclusive(ctx, "reset", nil, func(r *run) {
		r.speed(speedSafeStop)
		r.motion("RESET")
		r.await()
		r.phase(PhaseUnknown)
	})
}

// OpenGripper opens the gripper. Anything held is dropped where the arm is.
func (s *Session) OpenGripper(ctx context.Context) (Result, error) {
	return s.exclusive(ctx, "open", nil, func(r *run) {
		r.open()
		if r.err == nil {
			if held, ok := s.inv.Discard(); ok {
				r.note(fmt.Sprintf("released %s from %s outside a choreography", held.Kind, held.From))
			}
		}
	})
}

// CloseGripper closes the gripper.
func (s *Session) CloseGripper(ctx context.Context) (Result, error) {
	return s.exclusive(ctx, "close", nil, func(r *run) {
		r.close()
	})
}

// SetSpeed sets the controller speed percentage.
func (s *Session) SetSpeed(ctx context.Context, speed int) (Result, error) {
	guard := func() error {
		if speed < 0 || speed > 100 {
			return faults.Wrap(faults.ErrConfiguration, "crane", "speed", fmt.Sprintf("speed %d outside 0-100", speed), nil)
		}
		return nil
	}
	return s.exclusive(ctx, "speed", guard, func(r *run) {
		r.speed(speed)
	})
}

// Move travels to pos and waits for the arm to settle.
func (s *Session) Move(ctx context.Context, pos arm.Position) (Result, error) {
	return s.exclusive(ctx, "move", nil, func(r *run) {
		r.moveTo(pos)
		r.await()
		r.phase(PhaseUnknown)
		if r.err == nil {
			s.client.State().SetPosition(pos)
		}
	})
}

// Jog moves one axis by a relative distance.
func (s *Session) Jog(ctx context.Context, axis arm.Axis, distance int) (Result, error) {
	guard := func() error {
		if _, err := arm.ParseAxis(string(axis)); err != nil {
			return faults.Wrap(faults.ErrConfiguration, "crane", "jog", err.Error(), nil)
		}
		return nil
	}
	return s.exclusive(ctx, "jog", guard, func(r *run) {
		r.jog(axis, distance)
		r.await()
		r.phase(PhaseUnknown)
	})
}

// Limp releases (enabled) or re-engages the joint motors. The controller's
// argument is inverted: releasing the joints is "LIMP FALSE".
func (s *Session) Limp(ctx context.Context, enabled bool) (Result, error) {
	return s.exclusive(ctx, "limp", nil, func(r *run) {
		if enabled {
			r.motion("LIMP FALSE")
			r.phase(PhaseUnknown)
			return
		}
		r.motion("LIMP TRUE")
		r.logger.Info("joints engaged", logging.String(logging.FieldEventType, "limp_off"))
	})
}
