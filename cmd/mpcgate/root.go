package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mpcgate",
	Short: "mpcgate coordinates MPC parties and the clients that feed them",
	Long: `mpcgate serializes clients through an admission queue and hands the head of the line
an exclusive session with the computation parties.

Every command reads an optional YAML file (--config) and then the environment,
so existing deployments keep working with their variables (PORT, PARTY_HOSTS, ...).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file (environment variables take precedence)")
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
