// Package ipc exposes the crane daemon over JSON-RPC on a Unix domain socket.
//
// The server registers a single "Crane" service whose methods mirror the
// session operations. Classified failures travel as a Fault carrying the
// error kind, and the client rebuilds them so errors.Is keeps working against
// the sentinels in package faults.
package ipc
