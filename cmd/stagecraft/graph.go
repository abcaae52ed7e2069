package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/internal/presentation/graph"
	"github.com/aretw0/stagecraft/pkg/adapters/file"
)

var graphCmd = &cobra.Command{
	Use:   "graph <agent>",
	Short: "Export the stage graph of an agent",
	Long: `Outputs a Mermaid diagram (graph TD) of the agent's stages, stage-items and delegations.
With --results, the outcome of an archived run is overlaid on the nodes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		app, err := newApp(s, logging.NewNop())
		if err != nil {
			return err
		}
		defer app.Shutdown(context.Background())

		agent, err := app.Loader().Load(context.Background(), args[0])
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if dir, _ := cmd.Flags().GetString("results"); dir != "" {
			results, err := file.LoadSnapshot(dir)
			if err != nil {
				return err
			}
			overlay = &graph.Overlay{Results: results}
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(agent, overlay))
		return err
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("results", "", "Archived run directory to overlay")
}
