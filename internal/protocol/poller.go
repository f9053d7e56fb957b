package protocol

import (
	"context"
	"fmt"
	"time"

	"platecrane/internal/faults"
)

const defaultPollInterval = 100 * time.Millisecond

// Poller waits for the arm to finish a motion by querying STATUS.
type Poller struct {
	client   *Client
	interval time.Duration
	maxWait  time.Duration
}

// NewPoller builds a poller. maxWait of zero polls until the context ends.
func NewPoller(client *Client, interval, maxWait time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if maxWait < 0 {
		maxWait = 0
	}
	return &Poller{client: client, interval: interval, maxWait: maxWait}
}

// Check issues one STATUS query. A "0000 <text>" answer marks the arm ready
// and an explicit non-zero code is a DeviceFault. Anything else marks it busy
// and waits one poll interval before returning.
func (p *Poller) Check(ctx context.Context) (bool, error) {
	resp, err := p.client.Send(ctx, "STATUS")
	if err != nil {
		return false, err
	}
	if err := resp.Err(); err != nil {
		return false, err
	}
	if p.record(resp) {
		return true, nil
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, nil
	}
}

// Query issues one STATUS query without waiting and returns the updated
// device state. An empty reply is a ProtocolParseError and a non-zero status
// code is a DeviceFault.
func (p *Poller) Query(ctx context.Context) (StateSnapshot, error) {
	resp, err := p.client.Send(ctx, "STATUS")
	if err != nil {
		return p.client.state.Snapshot(), err
	}
	if len(resp.Lines) == 0 {
		return p.client.state.Snapshot(), faults.Wrap(faults.ErrProtocolParse, "poller", "STATUS", "empty status reply", nil)
	}
	if err := resp.Err(); err != nil {
		return p.client.state.Snapshot(), err
	}
	p.record(resp)
	return p.client.state.Snapshot(), nil
}

func (p *Poller) record(resp Response) bool {
	if text, ok := resp.Ready(); ok {
		p.client.state.setReady(text)
		return true
	}
	p.client.state.setBusy()
	return false
}

// AwaitReady polls until the arm reports ready. Cancelling ctx abandons the
// wait only; the arm keeps moving.
func (p *Poller) AwaitReady(ctx context.Context) error {
	start := time.Now()
	polls := 0
	for {
		ready, err := p.Check(ctx)
		polls++
		if err != nil {
			if ctx.Err() != nil {
				return faults.Wrap(faults.ErrTransport, "poller", "await ready", "wait abandoned", ctx.Err())
			}
			return err
		}
		if ready {
			return nil
		}
		if p.maxWait > 0 && time.Since(start) >= p.maxWait {
			return faults.Wrap(faults.ErrTransport, "poller", "await ready",
				fmt.Sprintf("arm not ready after %s (%d polls)", p.maxWait, polls), nil)
		}
	}
}
