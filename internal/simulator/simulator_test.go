package simulator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platecrane/internal/arm"
	"platecrane/internal/protocol"
	"platecrane/internal/simulator"
	"platecrane/internal/transport"
)

func newClient(t *testing.T, ctrl *simulator.Controller) *protocol.Client {
	t.Helper()
	port := ctrl.Pipe(time.Second)
	t.Cleanup(func() { _ = port.Close() })
	return protocol.NewClient(port, protocol.Options{})
}

func TestHandleEndsWithEcho(t *testing.T) {
	ctrl := simulator.New(simulator.DefaultOptions())
	reply := ctrl.Handle("VERSION\r\n")
	assert.Equal(t, "0000 Sciclops Simulator 1.0\r\nVERSION\r\n", reply)
	assert.Equal(t, []string{"VERSION"}, ctrl.Commands())
}

func TestPointLifecycleMovesArm(t *testing.T) {
	ctrl := simulator.New(simulator.DefaultOptions())
	client := newClient(t, ctrl)
	ctx := context.Background()

	target := arm.Position{Z: 23.5188, R: 133.5, Y: 171.9895, P: 8.6648}
	resp, err := client.Send(ctx, "LOADPOINT R:133.5, Z:23.5188, P:8.6648, Y:171.9895, R:133.5")
	require.NoError(t, err)
	require.NoError(t, resp.Err())
	assert.True(t, resp.Echoed)

	resp, err = client.Send(ctx, "MOVE R:133.5")
	require.NoError(t, err)
	require.NoError(t, resp.Err())
	assert.True(t, ctrl.Position().Equal(target, 1e-9))

	resp, err = client.Send(ctx, "DELETEPOINT R:133.5")
	require.NoError(t, err)
	require.NoError(t, resp.Err())

	resp, err = client.Send(ctx, "MOVE R:133.5")
	require.NoError(t, err)
	assert.Error(t, resp.Err())
}

func TestJogClampsVerticalAxis(t *testing.T) {
	opts := simulator.DefaultOptions()
	ctrl := simulator.New(opts)
	client := newClient(t, ctrl)

	_, err := client.Send(context.Background(), "JOG Z,-1000")
	require.NoError(t, err)
	assert.Equal(t, opts.ZMin, ctrl.Position().Z)

	_, err = client.Send(context.Background(), "JOG Z,1000")
	require.NoError(t, err)
	assert.Equal(t, opts.ZMax, ctrl.Position().Z)
}

func TestGetPosParsesThroughClient(t *testing.T) {
	ctrl := simulator.New(simulator.DefaultOptions())
	client := newClient(t, ctrl)

	resp, err := client.Send(context.Background(), "GETPOS")
	require.NoError(t, err)
	pos, err := resp.Position()
	require.NoError(t, err)
	assert.True(t, pos.Equal(simulator.DefaultOptions().Home, 1e-9))
}

func TestStatusReportsBusyAfterMotion(t *testing.T) {
	opts := simulator.DefaultOptions()
	opts.BusyPolls = 2
	ctrl := simulator.New(opts)
	client := newClient(t, ctrl)
	poller := protocol.NewPoller(client, time.Millisecond, time.Second)
	ctx := context.Background()

	_, err := client.Send(ctx, "HOME")
	require.NoError(t, err)

	ready, err := poller.Check(ctx)
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, poller.AwaitReady(ctx))
	assert.Equal(t, protocol.MovementReady, client.State().Movement())
}

func TestInjectedFaultReturnsStatusCode(t *testing.T) {
	ctrl := simulator.New(simulator.DefaultOptions())
	ctrl.InjectFault("close", "0042", "Gripper stalled", 1)
	client := newClient(t, ctrl)

	resp, err := client.Send(context.Background(), "CLOSE")
	require.NoError(t, err)
	require.NotNil(t, resp.Status)
	assert.Equal(t, "0042", resp.Status.Code)
	assert.Error(t, resp.Err())

	resp, err = client.Send(context.Background(), "CLOSE")
	require.NoError(t, err)
	assert.NoError(t, resp.Err())
	assert.False(t, ctrl.GripperOpen())
}

func TestLimpAndSpeed(t *testing.T) {
	ctrl := simulator.New(simulator.DefaultOptions())
	client := newClient(t, ctrl)
	ctx := context.Background()

	_, err := client.Send(ctx, "LIMP FALSE")
	require.NoError(t, err)
	assert.True(t, ctrl.Limp())

	_, err = client.Send(ctx, "LIMP TRUE")
	require.NoError(t, err)
	assert.False(t, ctrl.Limp())

	_, err = client.Send(ctx, "SETSPEED 15")
	require.NoError(t, err)
	assert.Equal(t, 15, ctrl.Speed())

	resp, err := client.Send(ctx, "SETSPEED 150")
	require.NoError(t, err)
	assert.Error(t, resp.Err())
	assert.Equal(t, 15, ctrl.Speed())
}

func TestMotionCommandsFiltersQueries(t *testing.T) {
	ctrl := simulator.New(simulator.DefaultOptions())
	for _, cmd := range []string{"STATUS", "OPEN", "GETPOS", "JOG Z,10", "SETSPEED 5"} {
		ctrl.Handle(cmd)
	}
	assert.Equal(t, []string{"OPEN", "JOG Z,10"}, ctrl.MotionCommands())
	ctrl.ResetLog()
	assert.Empty(t, ctrl.Commands())
}

func TestServerAcceptsTCPHost(t *testing.T) {
	server := simulator.NewServer(simulator.New(simulator.DefaultOptions()), nil)
	addr, err := server.Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	conn, err := transport.Dial(ctx, addr.String(), time.Second)
	require.NoError(t, err)
	client := protocol.NewClient(conn, protocol.Options{})
	resp, err := client.Send(ctx, "VERSION")
	require.NoError(t, err)
	payload, err := resp.Payload()
	require.NoError(t, err)
	assert.Equal(t, "Sciclops Simulator 1.0", payload)
	require.NoError(t, conn.Close())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
