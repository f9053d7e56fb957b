// Package daemon coordinates the long-running platecrane process.
//
// It wires configuration, the inventory model, the ledger and the crane
// session into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon owns the device port: it opens it on start,
// drops it when the USB device disappears and reopens it when the device
// returns, so callers only ever talk to the session.
package daemon
