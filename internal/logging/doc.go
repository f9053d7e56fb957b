// Package logging assembles structured slog loggers for the crane daemon and CLI.
//
// It owns the console and JSON handlers, fans records out to the systemd
// journal when enabled, and exposes context helpers so choreography code tags
// log lines with the operation name and request id automatically. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
