package protocol

import (
	"sync"
	"time"

	"platecrane/internal/arm"
)

// Movement is the last observed motion state of the arm.
type Movement string

const (
	MovementUnknown Movement = "UNKNOWN"
	MovementReady   Movement = "READY"
	MovementBusy    Movement = "BUSY"
)

// DeviceState is the last known view of the controller. It is written by the
// client and poller and read by anyone; readers never wait on a choreography.
type DeviceState struct {
	mu          sync.RWMutex
	position    arm.Position
	hasPosition bool
	status      string
	lastError   string
	successes   int
	movement    Movement
	updated     time.Time
}

// StateSnapshot is an immutable copy of DeviceState.
type StateSnapshot struct {
	Position    arm.Position `json:"position"`
	HasPosition bool         `json:"has_position"`
	Status      string       `json:"status"`
	Error       string       `json:"error,omitempty"`
	Successes   int          `json:"successes"`
	Movement    Movement     `json:"movement"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewDeviceState returns an empty state with unknown movement.
func NewDeviceState() *DeviceState {
	return &DeviceState{movement: MovementUnknown}
}

// Snapshot copies the current state.
func (s *DeviceState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{
		Position:    s.position,
		HasPosition: s.hasPosition,
		Status:      s.status,
		Error:       s.lastError,
		Successes:   s.successes,
		Movement:    s.movement,
		UpdatedAt:   s.updated,
	}
}

// Movement returns the last observed motion state.
func (s *DeviceState) Movement() Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movement
}

func (s *DeviceState) recordResponse(resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes += resp.Successes
	if resp.Status != nil && !resp.Status.OK() {
		s.lastError = "ERROR: " + resp.Status.String()
	}
	s.updated = time.Now()
}

func (s *DeviceState) recordError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = text
	s.updated = time.Now()
}

// SetPosition records a queried pose.
func (s *DeviceState) SetPosition(pos arm.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = pos
	s.hasPosition = true
	s.updated = time.Now()
}

func (s *DeviceState) setReady(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.movement = MovementReady
	s.updated = time.Now()
}

func (s *DeviceState) setBusy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movement = MovementBusy
	s.updated = time.Now()
}

// ClearError forgets the last device error.
func (s *DeviceState) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}
