// Package main hosts the platecrane CLI.
//
// Every device command is an IPC call against the daemon, which owns the
// crane session; the CLI itself never opens the controller. The exceptions
// are "daemon", which runs the daemon in the foreground, and "simulate",
// which serves a simulated controller over TCP for bench testing.
package main
