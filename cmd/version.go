package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MJE43/studio-analyzer/internal/api"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		info := api.GetVersionInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "studio %s (commit %s, built %s)\n", info.Version, info.GitCommit, info.BuildTime)
	},
}
