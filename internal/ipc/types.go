package ipc

import (
	"errors"

	"platecrane/internal/arm"
	"platecrane/internal/crane"
	"platecrane/internal/daemon"
	"platecrane/internal/faults"
	"platecrane/internal/inventory"
	"platecrane/internal/ledger"
	"platecrane/internal/protocol"
)

// Fault is a classified error carried across the socket.
type Fault struct {
	Kind    faults.Kind `json:"kind"`
	Message string      `json:"message"`
}

func newFault(err error) *Fault {
	if err == nil {
		return nil
	}
	return &Fault{Kind: faults.KindOf(err), Message: err.Error()}
}

// Err rebuilds the error. Known kinds unwrap to their sentinel.
func (f *Fault) Err() error {
	if f == nil {
		return nil
	}
	marker := faults.MarkerFor(f.Kind)
	if marker == nil {
		return errors.New(f.Message)
	}
	return &remoteError{marker: marker, message: f.Message}
}

type remoteError struct {
	marker  error
	message string
}

func (e *remoteError) Error() string { return e.message }
func (e *remoteError) Unwrap() error { return e.marker }

// Request carries the correlation id shared by every call.
type Request struct {
	RequestID string `json:"request_id,omitempty"`
}

// StatusRequest fetches daemon status without touching the device.
type StatusRequest struct{}

// StatusResponse is the daemon's view of itself and the session.
type StatusResponse struct {
	Status daemon.Status `json:"status"`
}

// DeviceStatusResponse is the outcome of one STATUS exchange.
type DeviceStatusResponse struct {
	State protocol.StateSnapshot `json:"state"`
	Fault *Fault                 `json:"fault,omitempty"`
}

// PositionResponse is the arm pose reported by GETPOS.
type PositionResponse struct {
	Position arm.Position `json:"position"`
	Fault    *Fault       `json:"fault,omitempty"`
}

// OperationResponse reports a motion or choreography.
type OperationResponse struct {
	Result crane.Result `json:"result"`
	Fault  *Fault       `json:"fault,omitempty"`
}

// SpeedRequest sets the controller speed.
type SpeedRequest struct {
	Request
	Speed int `json:"speed"`
}

// MoveRequest moves to an absolute pose.
type MoveRequest struct {
	Request
	Position arm.Position `json:"position"`
}

// JogRequest moves one axis relatively.
type JogRequest struct {
	Request
	Axis     string `json:"axis"`
	Distance int    `json:"distance"`
}

// LimpRequest toggles motor holding torque.
type LimpRequest struct {
	Request
	Enabled bool `json:"enabled"`
}

// QueryRequest names a read-only controller query.
type QueryRequest struct {
	Request
	Query string `json:"query"`
}

// QueryResponse carries the query payload.
type QueryResponse struct {
	Query   crane.Query `json:"query"`
	Payload string      `json:"payload"`
	Fault   *Fault      `json:"fault,omitempty"`
}

// GetPlateRequest moves a plate between two slots.
type GetPlateRequest struct {
	Request
	Source    string `json:"source"`
	Target    string `json:"target"`
	RemoveLid bool   `json:"remove_lid"`
	Trash     bool   `json:"trash"`
}

// RemoveLidRequest strips the lid from the exchange plate.
type RemoveLidRequest struct {
	Request
	Trash bool `json:"trash"`
}

// PlateToStackRequest returns the exchange plate to a tower.
type PlateToStackRequest struct {
	Request
	Tower  string `json:"tower"`
	AddLid bool   `json:"add_lid"`
}

// PlateToTrashRequest discards the exchange plate.
type PlateToTrashRequest struct {
	Request
	AddLid bool `json:"add_lid"`
}

// LidnestToTrashRequest discards the lid on a nest.
type LidnestToTrashRequest struct {
	Request
	Nest string `json:"nest"`
}

// InventoryRequest fetches the deck model.
type InventoryRequest struct{}

// SetSlotRequest overwrites one slot after manual intervention.
type SetSlotRequest struct {
	Name      string `json:"name"`
	Count     int    `json:"count"`
	PlateType string `json:"plate_type,omitempty"`
	HasLid    bool   `json:"has_lid"`
}

// ClearHeldRequest forgets the gripper load.
type ClearHeldRequest struct{}

// InventoryResponse is the deck after the request.
type InventoryResponse struct {
	Inventory inventory.Snapshot `json:"inventory"`
	Fault     *Fault             `json:"fault,omitempty"`
}

// LedgerRequest lists tracked items. An empty location lists all.
type LedgerRequest struct {
	Location string `json:"location,omitempty"`
}

// LedgerLocation is one tracked stack, bottom to top.
type LedgerLocation struct {
	Name  string        `json:"name"`
	Items []ledger.Item `json:"items"`
}

// LedgerResponse lists tracked stacks.
type LedgerResponse struct {
	Enabled   bool             `json:"enabled"`
	Locations []LedgerLocation `json:"locations"`
	Fault     *Fault           `json:"fault,omitempty"`
}
