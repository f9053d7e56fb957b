package testsupport

import (
	"testing"
	"time"

	"platecrane/internal/config"
	"platecrane/internal/crane"
	"platecrane/internal/inventory"
	"platecrane/internal/protocol"
	"platecrane/internal/simulator"
)

// Rig is a session wired to an in-process simulated controller.
type Rig struct {
	Config     *config.Config
	Controller *simulator.Controller
	Client     *protocol.Client
	Session    *crane.Session
}

// NewRig builds a session for cfg against a fresh simulator with the
// default limits.
func NewRig(t testing.TB, cfg *config.Config) *Rig {
	t.Helper()
	return NewRigWithController(t, cfg, simulator.New(simulator.DefaultOptions()))
}

// NewRigWithController builds a session for cfg against ctrl.
func NewRigWithController(t testing.TB, cfg *config.Config, ctrl *simulator.Controller) *Rig {
	t.Helper()

	catalog, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	model, err := inventory.FromConfig(cfg, catalog)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	port := ctrl.Pipe(2 * time.Second)
	t.Cleanup(func() { _ = port.Close() })

	client := protocol.NewClient(port, protocol.Options{ReadSize: cfg.Device.ReadSize})
	session := crane.New(client, model, MustOpenLedger(t, cfg), crane.OptionsFromConfig(cfg, nil))
	return &Rig{Config: cfg, Controller: ctrl, Client: client, Session: session}
}
