package testsupport

import (
	"testing"

	"platecrane/internal/config"
	"platecrane/internal/ledger"
)

// MustOpenLedger opens the ledger selected by cfg and registers cleanup. The
// none backend yields nil.
func MustOpenLedger(t testing.TB, cfg *config.Config) ledger.Ledger {
	t.Helper()

	led, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	if led != nil {
		t.Cleanup(func() {
			_ = led.Close()
		})
	}
	return led
}
