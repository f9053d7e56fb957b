package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/google/uuid"

	"platecrane/internal/arm"
	"platecrane/internal/crane"
	"platecrane/internal/faults"
	"platecrane/internal/protocol"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	if err := c.client.Call(ServiceName+"."+method, req, resp); err != nil {
		return faults.Wrap(faults.ErrTransport, "ipc", method, "daemon call failed", err)
	}
	return nil
}

func newRequest() Request {
	return Request{RequestID: uuid.NewString()}
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reconnect asks the daemon to reopen the device.
func (c *Client) Reconnect() error {
	var resp OperationResponse
	if err := c.call("Reconnect", newRequest(), &resp); err != nil {
		return err
	}
	return resp.Fault.Err()
}

// DeviceStatus polls the controller once.
func (c *Client) DeviceStatus() (protocol.StateSnapshot, error) {
	var resp DeviceStatusResponse
	if err := c.call("DeviceStatus", newRequest(), &resp); err != nil {
		return protocol.StateSnapshot{}, err
	}
	return resp.State, resp.Fault.Err()
}

// Position reads the arm pose.
func (c *Client) Position() (arm.Position, error) {
	var resp PositionResponse
	if err := c.call("Position", newRequest(), &resp); err != nil {
		return arm.Position{}, err
	}
	return resp.Position, resp.Fault.Err()
}

// Query runs a read-only controller query by name.
func (c *Client) Query(name string) (crane.Query, string, error) {
	var resp QueryResponse
	if err := c.call("Query", QueryRequest{Request: newRequest(), Query: name}, &resp); err != nil {
		return "", "", err
	}
	return resp.Query, resp.Payload, resp.Fault.Err()
}

func (c *Client) operation(method string, req any) (crane.Result, error) {
	var resp OperationResponse
	if err := c.call(method, req, &resp); err != nil {
		return crane.Result{}, err
	}
	return resp.Result, resp.Fault.Err()
}

// Home homes every axis.
func (c *Client) Home() (crane.Result, error) {
	return c.operation("Home", newRequest())
}

// Reset reinitializes the controller.
func (c *Client) Reset() (crane.Result, error) {
	return c.operation("Reset", newRequest())
}

// Open opens the gripper.
func (c *Client) Open() (crane.Result, error) {
	return c.operation("Open", newRequest())
}

// CloseGripper closes the gripper.
func (c *Client) CloseGripper() (crane.Result, error) {
	return c.operation("Close", newRequest())
}

// Speed sets the controller speed.
func (c *Client) Speed(speed int) (crane.Result, error) {
	return c.operation("Speed", SpeedRequest{Request: newRequest(), Speed: speed})
}

// Move moves to an absolute pose.
func (c *Client) Move(pos arm.Position) (crane.Result, error) {
	return c.operation("Move", MoveRequest{Request: newRequest(), Position: pos})
}

// Jog moves one axis relatively.
func (c *Client) Jog(axis string, distance int) (crane.Result, error) {
	return c.operation("Jog", JogRequest{Request: newRequest(), Axis: axis, Distance: distance})
}

// Limp releases or re-engages the joints.
func (c *Client) Limp(enabled bool) (crane.Result, error) {
	return c.operation("Limp", LimpRequest{Request: newRequest(), Enabled: enabled})
}

// GetPlate moves the top plate of source onto target.
func (c *Client) GetPlate(source, target string, opts crane.GetPlateOptions) (crane.Result, error) {
	return c.operation("GetPlate", GetPlateRequest{
		Request:   newRequest(),
		Source:    source,
		Target:    target,
		RemoveLid: opts.RemoveLid,
		Trash:     opts.Trash,
	})
}

// RemoveLid strips the lid from the exchange plate.
func (c *Client) RemoveLid(trash bool) (crane.Result, error) {
	return c.operation("RemoveLid", RemoveLidRequest{Request: newRequest(), Trash: trash})
}

// ReplaceLid puts a matching lid back on the exchange plate.
func (c *Client) ReplaceLid() (crane.Result, error) {
	return c.operation("ReplaceLid", newRequest())
}

// PlateToStack returns the exchange plate to tower.
func (c *Client) PlateToStack(tower string, addLid bool) (crane.Result, error) {
	return c.operation("PlateToStack", PlateToStackRequest{Request: newRequest(), Tower: tower, AddLid: addLid})
}

// PlateToTrash discards the exchange plate.
func (c *Client) PlateToTrash(addLid bool) (crane.Result, error) {
	return c.operation("PlateToTrash", PlateToTrashRequest{Request: newRequest(), AddLid: addLid})
}

// LidnestToTrash discards the lid on nest.
func (c *Client) LidnestToTrash(nest string) (crane.Result, error) {
	return c.operation("LidnestToTrash", LidnestToTrashRequest{Request: newRequest(), Nest: nest})
}

// Inventory returns the deck model.
func (c *Client) Inventory() (*InventoryResponse, error) {
	var resp InventoryResponse
	if err := c.call("Inventory", InventoryRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetSlot overwrites one slot.
func (c *Client) SetSlot(req SetSlotRequest) (*InventoryResponse, error) {
	var resp InventoryResponse
	if err := c.call("SetSlot", req, &resp); err != nil {
		return nil, err
	}
	return &resp, resp.Fault.Err()
}

// ClearHeld forgets the gripper load.
func (c *Client) ClearHeld() (*InventoryResponse, error) {
	var resp InventoryResponse
	if err := c.call("ClearHeld", ClearHeldRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ledger lists tracked items at location, or everywhere when empty.
func (c *Client) Ledger(location string) (*LedgerResponse, error) {
	var resp LedgerResponse
	if err := c.call("Ledger", LedgerRequest{Location: location}, &resp); err != nil {
		return nil, err
	}
	if err := resp.Fault.Err(); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &resp, nil
}
