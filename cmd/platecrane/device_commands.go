package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"platecrane/internal/arm"
	"platecrane/internal/crane"
	"platecrane/internal/ipc"
)

func newDeviceCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newPositionCommand(ctx),
		newOperationCommand(ctx, "home", "Home every axis and park at neutral", (*ipc.Client).Home),
		newOperationCommand(ctx, "reset", "Reinitialize the controller", (*ipc.Client).Reset),
		newOperationCommand(ctx, "open", "Open the gripper", (*ipc.Client).Open),
		newOperationCommand(ctx, "close", "Close the gripper", (*ipc.Client).CloseGripper),
		newSpeedCommand(ctx),
		newMoveCommand(ctx),
		newJogCommand(ctx),
		newLimpCommand(ctx),
		newQueryCommand(ctx),
	}
}

// newOperationCommand wraps an argument-less operation.
func newOperationCommand(ctx *commandContext, use, short string, call func(*ipc.Client) (crane.Result, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.runOperation(cmd, call)
		},
	}
}

func (c *commandContext) runOperation(cmd *cobra.Command, call func(*ipc.Client) (crane.Result, error)) error {
	return c.withClient(func(client *ipc.Client) error {
		result, err := call(client)
		if err != nil {
			return err
		}
		return printResult(cmd, c.jsonOutput(), result)
	})
}

func newPositionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "position",
		Short: "Print the current arm pose",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				pos, err := client.Position()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, pos)
				}
				fmt.Fprintln(cmd.OutOrStdout(), pos.String())
				return nil
			})
		},
	}
}

func newSpeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "speed <0-100>",
		Short: "Set the controller speed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			speed, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid speed %q: %w", args[0], err)
			}
			return ctx.runOperation(cmd, func(client *ipc.Client) (crane.Result, error) {
				return client.Speed(speed)
			})
		},
	}
}

func newMoveCommand(ctx *commandContext) *cobra.Command {
	var pos arm.Position
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move to an absolute pose",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.runOperation(cmd, func(client *ipc.Client) (crane.Result, error) {
				return client.Move(pos)
			})
		},
	}
	cmd.Flags().Float64VarP(&pos.Z, "z", "z", 0, "Vertical coordinate")
	cmd.Flags().Float64VarP(&pos.R, "r", "r", 0, "Base rotation")
	cmd.Flags().Float64VarP(&pos.Y, "y", "y", 0, "Extension")
	cmd.Flags().Float64VarP(&pos.P, "p", "p", 0, "Gripper rotation")
	for _, name := range []string{"z", "r", "y", "p"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newJogCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jog <axis> <distance>",
		Short: "Move one axis by a relative distance",
		Long:  "Move one axis by a relative distance. Put -- before a negative distance:\n  platecrane jog Z -- -100",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			distance, err := strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("invalid distance %q: %w", args[1], err)
			}
			return ctx.runOperation(cmd, func(client *ipc.Client) (crane.Result, error) {
				return client.Jog(args[0], distance)
			})
		},
	}
}

func newLimpCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "limp <on|off>",
		Short:     "Release (on) or re-engage (off) the joint motors",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseSwitch(args[0])
			if err != nil {
				return err
			}
			return ctx.runOperation(cmd, func(client *ipc.Client) (crane.Result, error) {
				return client.Limp(enabled)
			})
		},
	}
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", value)
	}
}

func newQueryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "query [name]",
		Short: "Run a read-only controller query",
		Long:  "Run a read-only controller query. Without a name, list the available queries.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, q := range crane.Queries() {
					fmt.Fprintln(cmd.OutOrStdout(), q)
				}
				return nil
			}
			return ctx.withClient(func(client *ipc.Client) error {
				q, payload, err := client.Query(args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]string{"query": string(q), "payload": payload})
				}
				fmt.Fprintln(cmd.OutOrStdout(), payload)
				return nil
			})
		},
	}
}
