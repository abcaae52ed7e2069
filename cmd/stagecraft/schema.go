package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/stagecraft/pkg/config"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of agent configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.JSONSchema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
