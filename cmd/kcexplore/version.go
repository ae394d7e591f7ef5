package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kcexplore/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.Version = version.Version
	rootCmd.AddCommand(versionCmd)
}
