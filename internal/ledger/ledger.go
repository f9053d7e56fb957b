// Package ledger records which physical item (plate or lid) sits at which
// location, independent of the inventory counts. Every location is a stack:
// Push places an item on top and Pop removes the top item.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"platecrane/internal/config"
)

// ErrEmpty reports a pop from a location holding nothing.
var ErrEmpty = errors.New("ledger: location is empty")

// Item is one tracked resource.
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	PlateType string    `json:"plate_type,omitempty"`
	Location  string    `json:"location"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewItem mints an item with a fresh identifier.
func NewItem(name, plateType string) Item {
	return Item{ID: uuid.NewString(), Name: strings.TrimSpace(name), PlateType: strings.TrimSpace(plateType)}
}

// Ledger is the resource bookkeeping boundary.
type Ledger interface {
	// Pop removes the top item at location and returns it with the remaining contents.
	Pop(ctx context.Context, location string) (Item, []Item, error)
	// Push places item on top of location.
	Push(ctx context.Context, location string, item Item) error
	// Contents lists location bottom to top.
	Contents(ctx context.Context, location string) ([]Item, error)
	// Locations lists every location currently holding items.
	Locations(ctx context.Context) ([]string, error)
	Close() error
}

// Open builds the ledger selected by cfg.Ledger.Backend. The none backend
// returns a nil Ledger.
func Open(cfg *config.Config) (Ledger, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerNone, "":
		return nil, nil
	case config.LedgerMemory:
		return NewMemory(), nil
	case config.LedgerSQLite:
		store, err := OpenSQLite(cfg.Paths.LedgerDB)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q", cfg.Ledger.Backend)
	}
}
