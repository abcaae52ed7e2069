package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/stagecraft/internal/presentation/tui"
	"github.com/aretw0/stagecraft/pkg/adapters/file"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [run-dir]",
	Short: "Show an archived run",
	Long: `Prints the results of an archived run directory.
With --agent and no directory, lists the archived runs of that agent instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			agent, _ := cmd.Flags().GetString("agent")
			if agent == "" {
				return fmt.Errorf("either a run directory or --agent is required")
			}
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			runs, err := file.NewArchive(s.OutputDir).Runs(agent)
			if err != nil {
				return err
			}
			for _, dir := range runs {
				state := "failed"
				if file.Succeeded(dir) {
					state = "ok"
				}
				fmt.Fprintf(out, "%-7s %s\n", state, dir)
			}
			return nil
		}

		results, err := file.LoadSnapshot(args[0])
		if err != nil {
			return err
		}
		rendered, err := tui.NewRenderer(out)(tui.ResultsMarkdown(results))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().String("agent", "", "List the archived runs of this agent")
}
