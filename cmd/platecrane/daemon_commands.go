package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"platecrane/internal/daemon"
	"platecrane/internal/daemonctl"
	"platecrane/internal/daemonrun"
	"platecrane/internal/ipc"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 10 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newDaemonRunCommand(ctx),
		newStartCommand(ctx),
		newStopCommand(ctx),
		newStatusCommand(ctx),
		newReconnectCommand(ctx),
	}
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var simulate bool
	var logLevel string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the platecrane daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if flag := cmd.Flag("socket"); flag != nil && flag.Changed {
				cfg.Paths.SocketPath = ctx.socketPath()
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel: logLevel,
				Simulate: simulate,
			})
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Drive an in-process simulated controller")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var simulate bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the daemon in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			executable, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), executable, daemonctl.LaunchOptions{
				SocketPath: ctx.socketPath(),
				ConfigPath: ctx.configPath(),
				Simulate:   simulate,
			}, startWaitTimeout)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			if result.Launched {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid %d)\n", result.PID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Launch against a simulated controller")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := daemonctl.Stop(ctx.socketPath(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			if result.ForcedKill {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon (pid %d) killed after %s\n", result.PID, stopGracePeriod)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon (pid %d) stopped\n", result.PID)
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var poll bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, session and device state",
		Long: "Show daemon, session and device state. Without --poll the device view is the\n" +
			"last one the daemon recorded; --poll sends one STATUS to the controller first.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				var pollErr error
				if poll {
					_, pollErr = client.DeviceStatus()
				}
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, resp.Status); err != nil {
						return err
					}
					return pollErr
				}
				renderDaemonStatus(cmd, resp.Status)
				return pollErr
			})
		},
	}
	cmd.Flags().BoolVar(&poll, "poll", false, "Query the controller before reporting")
	return cmd
}

func renderDaemonStatus(cmd *cobra.Command, status daemon.Status) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	session := status.Session

	daemonKind := statusOK
	if !status.Running {
		daemonKind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, fmt.Sprintf("pid %d", status.PID), colorize))

	deviceKind, deviceMsg := statusOK, status.Device
	if !session.Online {
		deviceKind = statusError
		deviceMsg = status.Device + " (offline)"
		if status.LastAttachError != "" {
			deviceMsg += ": " + status.LastAttachError
		}
	}
	fmt.Fprintln(out, renderStatusLine("Device", deviceKind, deviceMsg, colorize))
	fmt.Fprintln(out, renderStatusLine("Hotplug", statusInfo, yesNo(status.Hotplug), colorize))

	opKind, opMsg := statusInfo, "idle"
	if session.Busy {
		opKind, opMsg = statusWarn, humanize(session.Operation)
	}
	fmt.Fprintln(out, renderStatusLine("Operation", opKind, opMsg, colorize))
	fmt.Fprintln(out, renderStatusLine("Phase", statusInfo, humanize(string(session.Phase)), colorize))
	if session.Unsettled {
		fmt.Fprintln(out, renderStatusLine("Motion", statusWarn, "unsettled; next operation waits for READY", colorize))
	}
	if session.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError,
			fmt.Sprintf("%s: %s", session.LastOperation, session.LastError), colorize))
	}

	device := session.Device
	if device.Status != "" {
		fmt.Fprintln(out, renderStatusLine("Controller", statusInfo, device.Status, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Movement", statusInfo, string(device.Movement), colorize))
	if device.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Controller error", statusError, device.Error, colorize))
	}
	if device.HasPosition {
		fmt.Fprintln(out, renderStatusLine("Position", statusInfo, device.Position.String(), colorize))
	}
	if session.Held != nil {
		fmt.Fprintln(out, renderStatusLine("Gripper", statusWarn, describeHeld(*session.Held), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Ledger", statusInfo, status.LedgerBackend, colorize))
}

func newReconnectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconnect",
		Short: "Reopen the controller connection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.Reconnect(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Device attached")
				return nil
			})
		},
	}
}
