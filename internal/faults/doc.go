// Package faults defines the error taxonomy shared by the transport, protocol,
// inventory and choreography layers.
//
// Every failure that crosses a public boundary is tagged with exactly one
// sentinel marker (transport, protocol parse, device fault, inventory
// violation, concurrency violation) so callers can classify it with
// errors.Is or KindOf while the message keeps the component, operation and
// underlying cause.
package faults
