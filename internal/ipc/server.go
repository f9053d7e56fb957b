package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"platecrane/internal/arm"
	"platecrane/internal/crane"
	"platecrane/internal/daemon"
	"platecrane/internal/faults"
	"platecrane/internal/logging"
)

// ServiceName is the RPC receiver name.
const ServiceName = "Crane"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Connections still
// open are served until their clients hang up.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// do runs fn with the request id attached to the context and converts both
// errors and panics into a Fault.
func (s *service) do(method, requestID string, fn func(ctx context.Context) error) (fault *Fault) {
	ctx := logging.WithRequestID(s.ctx, requestID)
	logger := logging.WithContext(ctx, s.logger)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "ipc handler panicked", "ipc_panic",
				logging.String("method", method),
				logging.Any("panic", r),
			)
			fault = &Fault{Kind: faults.KindInternal, Message: fmt.Sprintf("%s: internal error: %v", method, r)}
		}
	}()
	logger.Debug("ipc request", logging.String("method", method))
	return newFault(fn(ctx))
}

func (s *service) session() *crane.Session {
	return s.daemon.Session()
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status()
	return nil
}

func (s *service) Reconnect(req Request, resp *OperationResponse) error {
	resp.Result.Operation = "reconnect"
	resp.Fault = s.do("reconnect", req.RequestID, s.daemon.Reconnect)
	return nil
}

func (s *service) DeviceStatus(req Request, resp *DeviceStatusResponse) error {
	resp.Fault = s.do("device_status", req.RequestID, func(ctx context.Context) error {
		state, err := s.session().Status(ctx)
		resp.State = state
		return err
	})
	return nil
}

func (s *service) Position(req Request, resp *PositionResponse) error {
	resp.Fault = s.do("position", req.RequestID, func(ctx context.Context) error {
		pos, err := s.session().Position(ctx)
		resp.Position = pos
		return err
	})
	return nil
}

func (s *service) Query(req QueryRequest, resp *QueryResponse) error {
	resp.Fault = s.do("query", req.RequestID, func(ctx context.Context) error {
		q, err := crane.ParseQuery(req.Query)
		if err != nil {
			return err
		}
		resp.Query = q
		resp.Payload, err = s.session().Query(ctx, q)
		return err
	})
	return nil
}

// operation runs one Result-returning session call.
func (s *service) operation(method, requestID string, resp *OperationResponse, fn func(context.Context) (crane.Result, error)) {
	resp.Fault = s.do(method, requestID, func(ctx context.Context) error {
		result, err := fn(ctx)
		resp.Result = result
		return err
	})
}

func (s *service) Home(req Request, resp *OperationResponse) error {
	s.operation("home", req.RequestID, resp, s.session().Home)
	return nil
}

func (s *service) Reset(req Request, resp *OperationResponse) error {
	s.operation("reset", req.RequestID, resp, s.session().Reset)
	return nil
}

func (s *service) Open(req Request, resp *OperationResponse) error {
	s.operation("open", req.RequestID, resp, s.session().OpenGripper)
	return nil
}

func (s *service) Close(req Request, resp *OperationResponse) error {
	s.operation("close", req.RequestID, resp, s.session().CloseGripper)
	return nil
}

func (s *service) Speed(req SpeedRequest, resp *OperationResponse) error {
	s.operation("speed", req.RequestID, resp, func(ctx context.Context) (crane.Result, error) {
		return s.session().SetSpeed(ctx, req.Speed)
	})
	return nil
}

func (s *service) Move(req MoveRequest, resp *OperationResponse) error {
	s.operation("move", req.RequestID, resp, func(ctx context.Context) (crane.Result, error) {
		return s.session().Move(ctx, req.Position)
	})
	return nil
}

func (s *service) Jog(req JogRequest, resp *OperationResponse) error {
	s.operation("jog", req.RequestID, resp, func(ctx context.Context) (crane.Result, error) {
		axis, err := arm.ParseAxis(req.Axis)
		if err != nil {
			axis = arm.Axis(req.Axis)
		}
		return s.session().Jog(ctx, axis, req.Distance)
	})
	return nil
}

func (s *service) Limp(req LimpRequest, resp *OperationResponse) error {
	s.operation("limp", req.RequestID, resp, func(ctx context.Context) (crane.Result, error) {
		return s.session().Limp(ctx, req.Enabled)
	})
	return nil
}

func (s *service) GetPlate(req GetPlateRequest, resp *OperationResponse) error {
	s.operation("get_plate", req.RequestID, resp, func(ctx context.Context) (crane.Result, error) {
		return s.session().GetPlate(ctx, req.Source, req.Target, crane.GetPlateOptions{RemoveLid: req.RemoveLid, Trash: req.Trash})
	})
	return nil
}

func (s *service) RemoveLid(req RemoveLidRequest, resp *OperationResponse) error {
	s.operation("remove_lid", req.RequestID, resp, func(ctx context.Context) (crane.Result, error) {
		return s.session().RemoveLid(ctx, req.Trash)
	})
	return nil
}

func (s *service) ReplaceLid(req Request, resp *OperationResponse) error {
	s.operation("replace_lid", req.RequestID, resp, s.session().ReplaceLid)
	return nil
}

func (s *service) PlateToStack(req PlateToStackRequest, resp *OperationResponse) error {
	s.operation("plate_to_stack", req.RequestID, resp, func(ctx context.Context) (crane.Result, error) {
		return s.session().PlateToStack(ctx, req.Tower, req.AddLid)
	})
	return nil
}

func (s *service) PlateToTrash(req PlateToTrashRequest, resp *OperationResponse) error {
	s.operation("plate_to_trash", req.RequestID, resp, func(ctx context.Context) (crane.Result, error) {
		return s.session().PlateToTrash(ctx, req.AddLid)
	})
	return nil
}

func (s *service) LidnestToTrash(req LidnestToTrashRequest, resp *OperationResponse) error {
	s.operation("lidnest_to_trash", req.RequestID, resp, func(ctx context.Context) (crane.Result, error) {
		return s.session().LidnestToTrash(ctx, req.Nest)
	})
	return nil
}

func (s *service) Inventory(_ InventoryRequest, resp *InventoryResponse) error {
	resp.Inventory = s.session().Inventory().Snapshot()
	return nil
}

func (s *service) SetSlot(req SetSlotRequest, resp *InventoryResponse) error {
	model := s.session().Inventory()
	resp.Fault = s.do("set_slot", "", func(context.Context) error {
		return model.Set(req.Name, req.Count, req.PlateType, req.HasLid)
	})
	if resp.Fault == nil {
		s.logger.Info("inventory slot overwritten",
			logging.String(logging.FieldEventType, "inventory_set"),
			logging.String(logging.FieldLocation, req.Name),
			logging.Int("count", req.Count),
			logging.Bool("has_lid", req.HasLid),
		)
	}
	resp.Inventory = model.Snapshot()
	return nil
}

func (s *service) ClearHeld(_ ClearHeldRequest, resp *InventoryResponse) error {
	model := s.session().Inventory()
	if held, ok := model.Held(); ok {
		model.ClearHeld()
		logging.WarnWithContext(s.logger, "gripper load cleared by operator", "gripper_cleared",
			logging.String("kind", string(held.Kind)),
			logging.String("from", held.From),
			logging.String(logging.FieldImpact, "the physical load must be removed by hand"),
		)
	}
	resp.Inventory = model.Snapshot()
	return nil
}

func (s *service) Ledger(req LedgerRequest, resp *LedgerResponse) error {
	led := s.session().Ledger()
	if led == nil {
		return nil
	}
	resp.Enabled = true
	resp.Fault = s.do("ledger", "", func(ctx context.Context) error {
		names := []string{req.Location}
		if req.Location == "" {
			var err error
			if names, err = led.Locations(ctx); err != nil {
				return err
			}
		}
		for _, name := range names {
			items, err := led.Contents(ctx, name)
			if err != nil {
				return err
			}
			resp.Locations = append(resp.Locations, LedgerLocation{Name: name, Items: items})
		}
		return nil
	})
	return nil
}
