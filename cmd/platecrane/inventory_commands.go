package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"platecrane/internal/inventory"
	"platecrane/internal/ipc"
)

func newInventoryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inventory",
		Aliases: []string{"inv"},
		Short:   "Show the deck model",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Inventory()
				if err != nil {
					return err
				}
				return ctx.printInventory(cmd, resp.Inventory)
			})
		},
	}
	cmd.AddCommand(newInventorySetCommand(ctx))
	cmd.AddCommand(newInventoryClearHeldCommand(ctx))
	return cmd
}

func newInventorySetCommand(ctx *commandContext) *cobra.Command {
	var req ipc.SetSlotRequest
	cmd := &cobra.Command{
		Use:   "set <slot>",
		Short: "Overwrite a slot after manual changes on the deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetSlot(req)
				if err != nil {
					return err
				}
				return ctx.printInventory(cmd, resp.Inventory)
			})
		},
	}
	cmd.Flags().IntVar(&req.Count, "count", 0, "Number of plates (or lids, for a nest)")
	cmd.Flags().StringVar(&req.PlateType, "type", "", "Plate type; unchanged when empty")
	cmd.Flags().BoolVar(&req.HasLid, "lid", false, "Whether the top plate carries a lid")
	_ = cmd.MarkFlagRequired("count")
	return cmd
}

func newInventoryClearHeldCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-held",
		Short: "Forget the gripper load after removing it by hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ClearHeld()
				if err != nil {
					return err
				}
				return ctx.printInventory(cmd, resp.Inventory)
			})
		},
	}
}

func (c *commandContext) printInventory(cmd *cobra.Command, snap inventory.Snapshot) error {
	if c.jsonOutput() {
		return writeJSON(cmd, snap)
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderInventory(snap))
	if snap.Held != nil {
		fmt.Fprintln(out, renderStatusLine("Gripper", statusWarn, describeHeld(*snap.Held), shouldColorize(out)))
	}
	return nil
}

func renderInventory(snap inventory.Snapshot) string {
	rows := make([][]string, 0, len(snap.Slots))
	for _, slot := range snap.Slots {
		if slot.Kind == inventory.KindNeutral {
			continue
		}
		capacity := "-"
		if slot.Capacity > 0 {
			capacity = strconv.Itoa(slot.Capacity)
		}
		lid := ""
		if slot.Count > 0 {
			lid = yesNo(slot.HasLid)
		}
		rows = append(rows, []string{
			slot.Name,
			humanize(string(slot.Kind)),
			slot.PlateType,
			strconv.Itoa(slot.Count),
			capacity,
			lid,
			slot.ResourceID,
		})
	}
	headers := []string{"Slot", "Kind", "Plate type", "Count", "Capacity", "Lid", "Resource"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}
	return renderTable(headers, rows, aligns) + "\n"
}

func describeHeld(held inventory.Held) string {
	desc := fmt.Sprintf("%s from %s", held.Kind, held.From)
	if held.PlateType != "" {
		desc = fmt.Sprintf("%s %s from %s", held.PlateType, held.Kind, held.From)
	}
	return desc
}

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger [location]",
		Short: "List tracked resources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location := ""
			if len(args) == 1 {
				location = args[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Ledger(location)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.Enabled {
					fmt.Fprintln(out, "Ledger disabled (set [ledger] backend to memory or sqlite)")
					return nil
				}
				fmt.Fprint(out, renderLedger(resp.Locations))
				return nil
			})
		},
	}
}

func renderLedger(locations []ipc.LedgerLocation) string {
	var rows [][]string
	for _, loc := range locations {
		for i := len(loc.Items) - 1; i >= 0; i-- {
			item := loc.Items[i]
			rows = append(rows, []string{
				loc.Name,
				strconv.Itoa(i + 1),
				item.ID,
				item.Name,
				item.PlateType,
				item.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
			})
		}
	}
	headers := []string{"Location", "Level", "ID", "Name", "Plate type", "Updated"}
	aligns := []columnAlignment{alignLeft, alignRight}
	return renderTable(headers, rows, aligns) + "\n"
}
