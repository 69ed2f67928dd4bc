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

var partyCmd = &cobra.Command{
	Use:   "party",
	Short: "Computation party commands",
}

var partyServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a computation party server",
	Long: `Starts the HTTP API of one computation party.

The verifier, share and query tools are looked up in tools_file and must all be
registered. Commitments are archived under archive_path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadParty(configPath(cmd), os.LookupEnv)
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
		logger = logger.With("party_id", cfg.PartyID)

		_, handler, err := cli.BuildParty(cfg, logger)
		if err != nil {
			return err
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		if cfg.APIKey == "" {
			logger.Warn("party_api_key is empty, MPC routes are unauthenticated")
		}
		err = cli.Serve(ctx, fmt.Sprintf(":%d", cfg.Port), handler, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(partyCmd)
	partyCmd.AddCommand(partyServeCmd)
	partyServeCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides PORT)")
}
