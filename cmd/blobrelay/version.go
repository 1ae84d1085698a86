package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/blobrelay"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of blobrelay",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "blobrelay version %s\n", strings.TrimSpace(blobrelay.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
