package main

import (
	"encoding/json"
	"os"

	"github.com/aretw0/mpcgate/internal/config"
	"github.com/aretw0/mpcgate/internal/presentation/tui"
	mpchttp "github.com/aretw0/mpcgate/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the admission queue of a running coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := coordinatorClient(cmd)
		if err != nil {
			return err
		}
		snap, err := coord.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd, snap)
		}
		style, _ := cmd.Flags().GetString("style")
		return tui.NewReporter(cmd.OutOrStdout(), style).Snapshot(snap)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <access_key>",
	Short: "Show where an access key stands without promoting anyone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := coordinatorClient(cmd)
		if err != nil {
			return err
		}
		status, err := coord.SessionStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, status)
	},
}

// coordinatorClient targets --url, falling back on the client configuration.
func coordinatorClient(cmd *cobra.Command) (*mpchttp.CoordinatorClient, error) {
	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		cfg, err := config.LoadClient(configPath(cmd), os.LookupEnv)
		if err != nil {
			return nil, err
		}
		url = cfg.CoordinationServerURL
	}
	return mpchttp.NewCoordinatorClient(url), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(queueCmd, statusCmd)
	for _, c := range []*cobra.Command{queueCmd, statusCmd} {
		c.Flags().String("url", "", "Coordination server URL (defaults to COORDINATION_SERVER_URL)")
	}
	queueCmd.Flags().Bool("json", false, "Print the raw snapshot")
	queueCmd.Flags().String("style", "auto", "Report style: auto, dark, light, notty or plain")
}
