package main

import (
	"fmt"

	"github.com/aminofox/zenclient"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "zenclient %s (sdk %s, commit: %s, built: %s)\n", version, zenclient.Version, commit, date)
	},
}
