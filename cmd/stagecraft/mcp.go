package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/stagecraft"
	"github.com/aretw0/stagecraft/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the task layer as MCP tools so AI agents can submit, inspect and stop tasks.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(s)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		_, storeOpts, closeStore, err := taskStore(s)
		if err != nil {
			return err
		}
		defer closeStore()

		app, err := newApp(s, logger, storeOpts...)
		if err != nil {
			return fmt.Errorf("failed to initialize stagecraft: %w", err)
		}
		defer app.Shutdown(context.Background())

		srv := mcp.NewServer(app.Manager(), app.Loader(), stagecraft.Version, mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			logger.Info("Starting stagecraft MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ServeSSE(ctx, port); err != nil {
				return err
			}
			logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (only for SSE)")
}
