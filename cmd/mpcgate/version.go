package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/mpcgate"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mpcgate",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mpcgate version %s\n", strings.TrimSpace(mpcgate.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
