// Package crane sequences controller primitives into the compound plate
// handling operations. A Session owns the device for the lifetime of the
// process: every operation holds its single lock, validates its inventory
// guards before the first motion, and updates the inventory right after the
// motion that changed the deck.
package crane

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"platecrane/internal/config"
	"platecrane/internal/faults"
	"platecrane/internal/inventory"
	"platecrane/internal/ledger"
	"platecrane/internal/logging"
	"platecrane/internal/protocol"
	"platecrane/internal/transport"
)

// Phase is where the arm is within a compound operation.
type Phase string

const (
	PhaseUnknown   Phase = "UNKNOWN"
	PhaseAtNeutral Phase = "AT_NEUTRAL"
	PhaseAtSource  Phase = "AT_SOURCE"
	PhaseGripping  Phase = "GRIPPING"
	PhaseAtTarget  Phase = "AT_TARGET"
	PhaseReleased  Phase = "RELEASED"
)

// Options configures a Session.
type Options struct {
	// Neutral names the location every operation starts from and returns to.
	Neutral      string
	TravelHeight float64
	DefaultSpeed int
	PollInterval time.Duration
	// MaxWait bounds each completion wait; zero waits until the context ends.
	MaxWait time.Duration
	// LockWait bounds how long a caller queues for the device; zero waits
	// until the context ends.
	LockWait             time.Duration
	EnforceStackCapacity bool
	// GripperID is the ledger location of whatever the gripper holds.
	GripperID string
	Logger    *slog.Logger
}

// OptionsFromConfig maps the motion and ledger sections onto Options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Neutral:              cfg.Motion.Neutral,
		TravelHeight:         cfg.Motion.TravelHeight,
		DefaultSpeed:         cfg.Motion.DefaultSpeed,
		PollInterval:         cfg.PollInterval(),
		MaxWait:              cfg.MaxWait(),
		LockWait:             cfg.LockWait(),
		EnforceStackCapacity: cfg.Motion.EnforceStackCapacity,
		GripperID:            cfg.Ledger.GripperID,
		Logger:               logger,
	}
}

// Session is the single thread of control for one crane.
type Session struct {
	client *protocol.Client
	poller *protocol.Poller
	inv    *inventory.Model
	ledger ledger.Ledger
	opts   Options
	logger *slog.Logger

	lock chan struct{}

	mu        sync.RWMutex
	operation string
	phase     Phase
	unsettled bool
	lastErr   error
	lastOp    string
}

// New builds a session. led may be nil when no ledger is configured.
func New(client *protocol.Client, inv *inventory.Model, led ledger.Ledger, opts Options) *Session {
	if opts.Neutral == "" {
		opts.Neutral = "neutral"
	}
	return &Session{
		client: client,
		poller: protocol.NewPoller(client, opts.PollInterval, opts.MaxWait),
		inv:    inv,
		ledger: led,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "crane"),
		lock:   make(chan struct{}, 1),
		phase:  PhaseUnknown,
	}
}

// Inventory exposes the deck model.
func (s *Session) Inventory() *inventory.Model {
	return s.inv
}

// Ledger returns the configured ledger, or nil.
func (s *Session) Ledger() ledger.Ledger {
	return s.ledger
}

// Online reports whether a port is attached.
func (s *Session) Online() bool {
	return s.client.Attached()
}

// Attach installs port, waits for any exclusive operation to finish, and
// applies the default speed. The previous port, if any, is closed.
func (s *Session) Attach(ctx context.Context, port transport.Port) error {
	release, err := s.acquire(ctx, "attach")
	if err != nil {
		return err
	}
	defer release()

	if previous := s.client.Attach(port); previous != nil {
		_ = previous.Close()
	}
	s.setPhase(PhaseUnknown)
	if port == nil || s.opts.DefaultSpeed <= 0 {
		return nil
	}
	r := s.newRun(ctx, "attach")
	r.speed(s.opts.DefaultSpeed)
	return r.err
}

// Detach drops the port after the device disappeared. Operations fail fast
// with a TransportError until the next Attach.
func (s *Session) Detach() {
	if previous := s.client.Attach(nil); previous != nil {
		_ = previous.Close()
	}
	s.mu.Lock()
	s.phase = PhaseUnknown
	s.unsettled = true
	s.mu.Unlock()
}

// acquire takes the device lock. Waiters are served in arrival order; a
// caller whose context ends, or whose lock wait elapses, leaves the queue with
// a ConcurrencyViolation and never touches the device.
func (s *Session) acquire(ctx context.Context, operation string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrConcurrency, "crane", operation, "device busy", err)
	}
	var expired <-chan time.Time
	if s.opts.LockWait > 0 {
		timer := time.NewTimer(s.opts.LockWait)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, faults.Wrap(faults.ErrConcurrency, "crane", operation, "device busy", ctx.Err())
	case <-expired:
		return nil, faults.Wrap(faults.ErrConcurrency, "crane", operation,
			fmt.Sprintf("device busy after waiting %s", s.opts.LockWait), nil)
	}
	s.mu.Lock()
	s.operation = operation
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.operation = ""
		s.mu.Unlock()
		<-s.lock
	}, nil
}

func (s *Session) setPhase(phase Phase) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

func (s *Session) markUnsettled() {
	s.mu.Lock()
	s.unsettled = true
	s.mu.Unlock()
}

func (s *Session) isUnsettled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unsettled
}

func (s *Session) finish(operation string, err error) {
	s.mu.Lock()
	s.lastOp = operation
	s.lastErr = err
	s.mu.Unlock()
}

// settle waits out a motion whose completion was never observed.
func (s *Session) settle(ctx context.Context) error {
	if !s.isUnsettled() {
		return nil
	}
	s.logger.Info("awaiting ready before next motion", logging.String(logging.FieldEventType, "settle"))
	if err := s.poller.AwaitReady(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.unsettled = false
	s.mu.Unlock()
	return nil
}

// Report is the local view of the session; building it never touches the
// device and never waits for the lock.
type Report struct {
	Online        bool                   `json:"online"`
	Busy          bool                   `json:"busy"`
	Operation     string                 `json:"operation,omitempty"`
	Phase         Phase                  `json:"phase"`
	Unsettled     bool                   `json:"unsettled"`
	LastOperation string                 `json:"last_operation,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
	Device        protocol.StateSnapshot `json:"device"`
	Held          *inventory.Held        `json:"held,omitempty"`
}

// Report snapshots the session.
func (s *Session) Report() Report {
	s.mu.RLock()
	report := Report{
		Online:        s.client.Attached(),
		Busy:          s.operation != "",
		Operation:     s.operation,
		Phase:         s.phase,
		Unsettled:     s.unsettled,
		LastOperation: s.lastOp,
	}
	if s.lastErr != nil {
		report.LastError = s.lastErr.Error()
	}
	s.mu.RUnlock()
	report.Device = s.client.State().Snapshot()
	if held, ok := s.inv.Held(); ok {
		report.Held = &held
	}
	return report
}
