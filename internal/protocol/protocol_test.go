package protocol_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platecrane/internal/arm"
	"platecrane/internal/faults"
	"platecrane/internal/protocol"
	"platecrane/internal/transport"
)

// scriptedPort answers each written command with the chunks queued for it.
type scriptedPort struct {
	mu       sync.Mutex
	replies  map[string][][]string
	pending  []string
	written  []string
	writeErr error
	readErr  error
}

func newScriptedPort() *scriptedPort {
	return &scriptedPort{replies: map[string][][]string{}}
}

// on queues one reply (a list of chunks) for cmd. Later replies are used by
// later sends; the last reply repeats.
func (p *scriptedPort) on(cmd string, chunks ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies[cmd] = append(p.replies[cmd], chunks)
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	cmd := strings.TrimRight(string(b), "\r\n")
	p.written = append(p.written, cmd)
	queue := p.replies[cmd]
	if len(queue) == 0 {
		p.pending = nil
		return len(b), nil
	}
	p.pending = append([]string(nil), queue[0]...)
	if len(queue) > 1 {
		p.replies[cmd] = queue[1:]
	}
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, transport.ErrTimeout
	}
	chunk := p.pending[0]
	p.pending = p.pending[1:]
	return copy(b, chunk), nil
}

func (p *scriptedPort) Close() error { return nil }

func (p *scriptedPort) commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func TestParseExtractsLastStatusLine(t *testing.T) {
	resp := protocol.Parse("HOME\r\n", "0100 Moving\r\n0000 Success\r\nHOME\r\n")
	require.NotNil(t, resp.Status)
	assert.Equal(t, "0000", resp.Status.Code)
	assert.Equal(t, "Success", resp.Status.Text)
	assert.Equal(t, 1, resp.Successes)
	assert.Equal(t, []string{"0100 Moving", "0000 Success"}, resp.Lines)
	assert.NoError(t, resp.Err())
}

func TestParseDeviceFault(t *testing.T) {
	resp := protocol.Parse("JOG Z,-1000", "0021 Z axis out of range\r\nJOG Z,-1000\r\n")
	err := resp.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrDeviceFault)
	assert.Contains(t, err.Error(), "0021 Z axis out of range")
}

func TestParseWithoutStatusIsNotAnError(t *testing.T) {
	resp := protocol.Parse("MOVE R:1", "")
	assert.Nil(t, resp.Status)
	assert.NoError(t, resp.Err())
	_, err := resp.Payload()
	assert.ErrorIs(t, err, faults.ErrProtocolParse)
}

func TestSendStopsAtEcho(t *testing.T) {
	port := newScriptedPort()
	port.on("VERSION", "0000 Sciclops v2.1\r\n", "VERSION\r\n", "stray\r\n")
	client := protocol.NewClient(port, protocol.Options{})

	resp, err := client.Send(context.Background(), "VERSION")
	require.NoError(t, err)
	assert.True(t, resp.Echoed)
	payload, err := resp.Payload()
	require.NoError(t, err)
	assert.Equal(t, "Sciclops v2.1", payload)
	assert.NotContains(t, resp.Raw, "stray")
}

func TestSendDetectsEchoInMergedChunk(t *testing.T) {
	port := newScriptedPort()
	port.on("STATUS", "0000 Ready\r\nSTATUS\r\n")
	client := protocol.NewClient(port, protocol.Options{})

	resp, err := client.Send(context.Background(), "STATUS\r\n")
	require.NoError(t, err)
	assert.True(t, resp.Echoed)
	assert.Equal(t, []string{"STATUS"}, port.commands())
}

func TestSendTimeoutReturnsPartialBuffer(t *testing.T) {
	port := newScriptedPort()
	port.on("MOVE R:120", "0100 Moving\r\n")
	client := protocol.NewClient(port, protocol.Options{})

	resp, err := client.Send(context.Background(), "MOVE R:120")
	require.NoError(t, err)
	assert.False(t, resp.Echoed)
	assert.Equal(t, "0100 Moving\r\n", resp.Raw)
}

func TestSendWriteFailureIsTransportError(t *testing.T) {
	port := newScriptedPort()
	port.writeErr = errors.New("broken pipe")
	client := protocol.NewClient(port, protocol.Options{})

	_, err := client.Send(context.Background(), "STATUS")
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrTransport)
	assert.NotEmpty(t, client.State().Snapshot().Error)
}

func TestSendReadFailureIsTransportErrorWithPartial(t *testing.T) {
	port := newScriptedPort()
	port.on("GETPOS", "Z:1, R:2")
	port.readErr = errors.New("device unplugged")
	client := protocol.NewClient(port, protocol.Options{})

	resp, err := client.Send(context.Background(), "GETPOS")
	assert.ErrorIs(t, err, faults.ErrTransport)
	assert.Equal(t, "Z:1, R:2", resp.Raw)
}

func TestSendDetachedIsTransportError(t *testing.T) {
	client := protocol.NewClient(nil, protocol.Options{})
	_, err := client.Send(context.Background(), "STATUS")
	assert.ErrorIs(t, err, faults.ErrTransport)
	assert.False(t, client.Attached())

	port := newScriptedPort()
	assert.Nil(t, client.Attach(port))
	assert.True(t, client.Attached())
}

func TestDeviceStateTracksErrorsAndSuccesses(t *testing.T) {
	port := newScriptedPort()
	port.on("OPEN", "0000 Success\r\nOPEN\r\n")
	port.on("CLOSE", "0042 Gripper jammed\r\nCLOSE\r\n")
	client := protocol.NewClient(port, protocol.Options{})

	_, err := client.Send(context.Background(), "OPEN")
	require.NoError(t, err)
	resp, err := client.Send(context.Background(), "CLOSE")
	require.NoError(t, err)
	assert.ErrorIs(t, resp.Err(), faults.ErrDeviceFault)

	snap := client.State().Snapshot()
	assert.Equal(t, 1, snap.Successes)
	assert.Equal(t, "ERROR: 0042 Gripper jammed", snap.Error)
}

func TestPositionFromResponse(t *testing.T) {
	resp := protocol.Parse("GETPOS", "Z:23.5188, R:109.2741, Y:32.7484, P:98.2955\r\n0000 Success\r\nGETPOS\r\n")
	pos, err := resp.Position()
	require.NoError(t, err)
	assert.True(t, pos.Equal(arm.Position{Z: 23.5188, R: 109.2741, Y: 32.7484, P: 98.2955}, 1e-9))

	_, err = protocol.Parse("GETPOS", "0000 Success\r\n").Position()
	assert.ErrorIs(t, err, faults.ErrProtocolParse)
}

func TestPollerAwaitsReady(t *testing.T) {
	port := newScriptedPort()
	port.on("STATUS", "BUSY\r\nSTATUS\r\n")
	port.on("STATUS", "STATUS\r\n")
	port.on("STATUS", "0000 Ready\r\nSTATUS\r\n")
	client := protocol.NewClient(port, protocol.Options{})
	poller := protocol.NewPoller(client, time.Millisecond, 0)

	require.NoError(t, poller.AwaitReady(context.Background()))
	assert.Len(t, port.commands(), 3)
	snap := client.State().Snapshot()
	assert.Equal(t, protocol.MovementReady, snap.Movement)
	assert.Equal(t, "Ready", snap.Status)
}

func TestPollerCheckMarksBusy(t *testing.T) {
	port := newScriptedPort()
	port.on("STATUS", "BUSY\r\nSTATUS\r\n")
	client := protocol.NewClient(port, protocol.Options{})
	poller := protocol.NewPoller(client, time.Millisecond, 0)

	ready, err := poller.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Equal(t, protocol.MovementBusy, client.State().Movement())
}

func TestPollerMaxWaitExhaustion(t *testing.T) {
	port := newScriptedPort()
	port.on("STATUS", "BUSY\r\nSTATUS\r\n")
	client := protocol.NewClient(port, protocol.Options{})
	poller := protocol.NewPoller(client, 5*time.Millisecond, 20*time.Millisecond)

	err := poller.AwaitReady(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrTransport)
	assert.Contains(t, err.Error(), "not ready")
}

func TestPollerCancellation(t *testing.T) {
	port := newScriptedPort()
	port.on("STATUS", "BUSY\r\nSTATUS\r\n")
	client := protocol.NewClient(port, protocol.Options{})
	poller := protocol.NewPoller(client, 5*time.Millisecond, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := poller.AwaitReady(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollerQueryDoesNotWait(t *testing.T) {
	port := newScriptedPort()
	port.on("STATUS", "BUSY\r\nSTATUS\r\n")
	port.on("STATUS", "0000 Ready\r\nSTATUS\r\n")
	port.on("STATUS", "STATUS\r\n")
	client := protocol.NewClient(port, protocol.Options{})
	poller := protocol.NewPoller(client, time.Hour, 0)
	ctx := context.Background()

	snap, err := poller.Query(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.MovementBusy, snap.Movement)

	snap, err = poller.Query(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.MovementReady, snap.Movement)

	_, err = poller.Query(ctx)
	assert.ErrorIs(t, err, faults.ErrProtocolParse)
}

func TestPollerStopsOnStatusFault(t *testing.T) {
	port := newScriptedPort()
	port.on("STATUS", "BUSY\r\nSTATUS\r\n")
	port.on("STATUS", "0042 Emergency stop engaged\r\nSTATUS\r\n")
	client := protocol.NewClient(port, protocol.Options{})
	poller := protocol.NewPoller(client, time.Millisecond, time.Hour)

	err := poller.AwaitReady(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrDeviceFault)
	assert.Contains(t, err.Error(), "0042 Emergency stop engaged")
	assert.Len(t, port.commands(), 2)
	assert.Equal(t, "ERROR: 0042 Emergency stop engaged", client.State().Snapshot().Error)

	_, err = poller.Query(context.Background())
	assert.ErrorIs(t, err, faults.ErrDeviceFault)
}
