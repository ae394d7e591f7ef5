package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kcexplore/pkg/config"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the preset optimization targets",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		for _, t := range config.Targets {
			fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s\n", t.Key, t.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}
