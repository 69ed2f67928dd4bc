package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/aretw0/mpcgate"
	"github.com/aretw0/mpcgate/internal/cli"
	"github.com/aretw0/mpcgate/internal/config"
	"github.com/aretw0/mpcgate/internal/presentation/tui"
	"github.com/aretw0/mpcgate/pkg/client"
	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/spf13/cobra"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Contribute data or query a computation",
}

var clientShareCmd = &cobra.Command{
	Use:   "share <access_key>",
	Short: "Notarize a balance and share it with the parties",
	Long: `Runs the prover, waits in line under access_key and feeds the secret to the parties.

The access key is the voucher handed out to contributors. The session is always
finished, even when sharing fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, reporter, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		res, err := c.Share(ctx, args[0])
		if err != nil {
			return explain(err)
		}
		return reporter.ShareResult(res)
	},
}

var clientQueryCmd = &cobra.Command{
	Use:   "query <computation_index>",
	Short: "Retrieve the result of a computation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil || idx < 0 {
			return fmt.Errorf("computation_index must be a non-negative integer, got %q", args[0])
		}
		c, reporter, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		res, err := c.Query(ctx, idx)
		if err != nil {
			return explain(err)
		}
		return reporter.QueryResult(res)
	},
}

func newClient(cmd *cobra.Command) (*client.Client, *tui.Reporter, error) {
	cfg, err := config.LoadClient(configPath(cmd), os.LookupEnv)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("style") {
		cfg.ReportStyle, _ = cmd.Flags().GetString("style")
	}

	logger, err := cli.NewLogger(os.Stderr, cfg.LogLevel, "text")
	if err != nil {
		return nil, nil, err
	}
	if tui.IsTerminal(os.Stderr) {
		tui.PrintBanner(os.Stderr, mpcgate.Version)
	}

	reporter := tui.NewReporter(cmd.OutOrStdout(), cfg.ReportStyle)
	c, err := cli.BuildClient(cfg, logger, client.WithProgress(reporter.Progress))
	if err != nil {
		return nil, nil, err
	}
	return c, reporter, nil
}

// explain adds a hint for the failures a user can act on.
func explain(err error) error {
	switch {
	case errors.Is(err, client.ErrDropped):
		return fmt.Errorf("%w (the session expired before it was used, run the command again)", err)
	case errors.Is(err, domain.ErrAlreadyContributed):
		return fmt.Errorf("%w (this access key or address has already been used)", err)
	case domain.IsEngineFailure(err):
		return fmt.Errorf("the MPC engine failed: %w", err)
	}
	return err
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(clientShareCmd, clientQueryCmd)
	clientCmd.PersistentFlags().String("style", "auto", "Report style: auto, dark, light, notty or plain")
}
