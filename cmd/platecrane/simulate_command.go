package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"platecrane/internal/logging"
	"platecrane/internal/simulator"
)

func newSimulateCommand(ctx *commandContext) *cobra.Command {
	var listen string
	var busyPolls int
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Serve a simulated crane controller over TCP",
		Long: "Serve a simulated crane controller over TCP. Point a daemon at it with\n" +
			"[device] transport = \"tcp\" and address set to the listen address.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			opts := simulator.DefaultOptions()
			opts.BusyPolls = busyPolls
			server := simulator.NewServer(simulator.New(opts), logger)
			addr, err := server.Listen(listen)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Simulated controller listening on %s\n", addr)

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return server.Serve(signalCtx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:7070", "TCP address to listen on")
	cmd.Flags().IntVar(&busyPolls, "busy-polls", 1, "STATUS polls answered BUSY after each motion")
	return cmd
}
