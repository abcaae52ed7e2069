package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/pkg/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate [agent...]",
	Short: "Check agent configurations",
	Long:  `Loads each agent (every agent of the directory when none is named), resolves its dependencies and reports every configuration error.`,
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

		ctx := context.Background()
		names := args
		if len(names) == 0 {
			if names, err = app.Agents(ctx); err != nil {
				return err
			}
		}
		if len(names) == 0 {
			return fmt.Errorf("no agents found in %s", s.AgentsDir)
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, name := range names {
			err := app.Validate(ctx, name)
			if err == nil {
				fmt.Fprintf(out, "✅ %s\n", name)
				continue
			}
			failed++
			fmt.Fprintf(out, "❌ %s\n", name)
			errs := schema.ValidationErrors(err)
			if errs == nil {
				errs = []error{err}
			}
			for _, e := range errs {
				fmt.Fprintf(out, "   - %v\n", e)
			}
		}
		if failed > 0 {
			return fmt.Errorf("validation failed for %d of %d agents", failed, len(names))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
