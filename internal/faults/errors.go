package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransport     = errors.New("transport error")
	ErrProtocolParse = errors.New("protocol parse error")
	ErrDeviceFault   = errors.New("device fault")
	ErrInventory     = errors.New("inventory violation")
	ErrConcurrency   = errors.New("concurrency violation")
	ErrConfiguration = errors.New("configuration error")
)

// Kind names the category of err for operator-facing output. Unclassified
// errors report "internal".
type Kind string

const (
	KindTransport     Kind = "transport"
	KindProtocolParse Kind = "protocol_parse"
	KindDeviceFault   Kind = "device_fault"
	KindInventory     Kind = "inventory_violation"
	KindConcurrency   Kind = "concurrency_violation"
	KindConfiguration Kind = "configuration"
	KindInternal      Kind = "internal"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf maps err onto its taxonomy tag.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConcurrency):
		return KindConcurrency
	case errors.Is(err, ErrInventory):
		return KindInventory
	case errors.Is(err, ErrDeviceFault):
		return KindDeviceFault
	case errors.Is(err, ErrProtocolParse):
		return KindProtocolParse
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindInternal
	}
}

// MarkerFor returns the sentinel matching kind, or nil when the kind is
// unknown. Used to rebuild classified errors on the client side of IPC.
func MarkerFor(kind Kind) error {
	switch kind {
	case KindTransport:
		return ErrTransport
	case KindProtocolParse:
		return ErrProtocolParse
	case KindDeviceFault:
		return ErrDeviceFault
	case KindInventory:
		return ErrInventory
	case KindConcurrency:
		return ErrConcurrency
	case KindConfiguration:
		return ErrConfiguration
	default:
		return nil
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "crane failure"
	}
	return strings.Join(parts, ": ")
}
