package daemon

import (
	"context"
	"testing"
	"time"

	"platecrane/internal/logging"
	"platecrane/internal/simulator"
	"platecrane/internal/testsupport"
	"platecrane/internal/transport"
)

func TestHandleDeviceEventDetachesAndReattaches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctrl := simulator.New(simulator.DefaultOptions())
	opens := 0
	opener := func(context.Context) (transport.Port, error) {
		opens++
		return ctrl.Pipe(2 * time.Second), nil
	}

	d, err := New(cfg, logging.NewNop(), WithOpener(opener))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	d.handleDeviceEvent(context.Background(), false)
	report := d.Status().Session
	if report.Online {
		t.Fatal("expected session offline after remove event")
	}
	if !report.Unsettled {
		t.Fatal("expected session unsettled after remove event")
	}

	d.handleDeviceEvent(context.Background(), true)
	if !d.Status().Session.Online {
		t.Fatal("expected session online after add event")
	}
	if opens != 2 {
		t.Fatalf("expected two opens, got %d", opens)
	}
}
