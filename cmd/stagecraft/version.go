package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/stagecraft"
	"github.com/aretw0/stagecraft/internal/presentation/tui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of stagecraft",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if tui.IsTerminal(out) {
			tui.PrintBanner(out)
		}
		fmt.Fprintf(out, "stagecraft version %s\n", strings.TrimSpace(stagecraft.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
