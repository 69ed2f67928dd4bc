package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/aretw0/mpcgate/internal/cli"
	"github.com/aretw0/mpcgate/internal/config"
	"github.com/spf13/cobra"
)

var coordCmd = &cobra.Command{
	Use:   "coord",
	Short: "Coordination server commands",
}

var coordServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coordination server",
	Long: `Starts the admission queue and its HTTP API.

The sweeper promotes idle heads every sweep_interval. On SIGINT or SIGTERM the server
stops accepting requests and waits for running party dispatches before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadCoordinator(configPath(cmd), os.LookupEnv)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}

		logger, err := cli.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		stack, err := cli.BuildCoordinator(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer stack.Close()

		go stack.Coordinator.Run(ctx, cfg.SweepInterval)

		logger.Info("Starting coordination server",
			"parties", len(cfg.PartyHosts),
			"ports", fmt.Sprintf("[%d,%d)", cfg.FreePortsStart, cfg.FreePortsEnd),
			"block_size", cfg.PortBlockSize,
			"queue_size", cfg.MaxQueueSize,
		)
		err = cli.Serve(ctx, fmt.Sprintf(":%d", cfg.Port), stack.Handler, logger)

		logger.Info("Waiting for party dispatches")
		stack.Coordinator.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err == nil {
			logger.Info("Coordination server stopped gracefully")
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(coordCmd)
	coordCmd.AddCommand(coordServeCmd)
	coordServeCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides PORT)")
}
