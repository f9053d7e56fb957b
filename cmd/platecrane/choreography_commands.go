package main

import (
	"github.com/spf13/cobra"

	"platecrane/internal/crane"
	"platecrane/internal/ipc"
)

func newChoreographyCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newGetPlateCommand(ctx),
		newRemoveLidCommand(ctx),
		newOperationCommand(ctx, "replace-lid", "Put a matching lid from a nest back on the exchange plate", (*ipc.Client).ReplaceLid),
		newPlateToStackCommand(ctx),
		newPlateToTrashCommand(ctx),
		newLidnestToTrashCommand(ctx),
	}
}

func newGetPlateCommand(ctx *commandContext) *cobra.Command {
	var opts crane.GetPlateOptions
	cmd := &cobra.Command{
		Use:   "get-plate <source> [target]",
		Short: "Carry the top plate of a tower to the exchange",
		Long: "Carry the top plate of source onto target (the exchange by default).\n" +
			"With --remove-lid the lid is stripped afterwards and stored in a lid nest,\n" +
			"or discarded with --trash.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "exchange"
			if len(args) == 2 {
				target = args[1]
			}
			return ctx.runOperation(cmd, func(client *ipc.Client) (crane.Result, error) {
				return client.GetPlate(args[0], target, opts)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.RemoveLid, "remove-lid", false, "Remove the lid once the plate is on the exchange")
	cmd.Flags().BoolVar(&opts.Trash, "trash", false, "Discard the removed lid instead of storing it")
	return cmd
}

func newRemoveLidCommand(ctx *commandContext) *cobra.Command {
	var trash bool
	cmd := &cobra.Command{
		Use:   "remove-lid",
		Short: "Strip the lid from the exchange plate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.runOperation(cmd, func(client *ipc.Client) (crane.Result, error) {
				return client.RemoveLid(trash)
			})
		},
	}
	cmd.Flags().BoolVar(&trash, "trash", false, "Discard the lid instead of storing it in a nest")
	return cmd
}

func newPlateToStackCommand(ctx *commandContext) *cobra.Command {
	var addLid bool
	cmd := &cobra.Command{
		Use:   "plate-to-stack <tower>",
		Short: "Return the exchange plate to a tower",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runOperation(cmd, func(client *ipc.Client) (crane.Result, error) {
				return client.PlateToStack(args[0], addLid)
			})
		},
	}
	cmd.Flags().BoolVar(&addLid, "add-lid", false, "Lid the plate from a nest first")
	return cmd
}

func newPlateToTrashCommand(ctx *commandContext) *cobra.Command {
	var addLid bool
	cmd := &cobra.Command{
		Use:   "plate-to-trash",
		Short: "Discard the exchange plate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.runOperation(cmd, func(client *ipc.Client) (crane.Result, error) {
				return client.PlateToTrash(addLid)
			})
		},
	}
	cmd.Flags().BoolVar(&addLid, "add-lid", false, "Lid the plate from a nest first")
	return cmd
}

func newLidnestToTrashCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "lidnest-to-trash <nest>",
		Short: "Discard the lid sitting on a nest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runOperation(cmd, func(client *ipc.Client) (crane.Result, error) {
				return client.LidnestToTrash(args[0])
			})
		},
	}
}
