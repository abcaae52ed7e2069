package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/stagecraft"
	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/internal/settings"
	"github.com/aretw0/stagecraft/pkg/adapters/file"
	"github.com/aretw0/stagecraft/pkg/adapters/process"
)

var rootCmd = &cobra.Command{
	Use:           "stagecraft",
	Short:         "Stagecraft runs staged automation agents",
	Long:          `Stagecraft runs declarative agents stage by stage, records every action result and exposes tasks over a CLI, HTTP and MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", settings.DefaultFile, "Settings file (TOML)")
	rootCmd.PersistentFlags().String("dir", "", "Directory containing agent configurations (overrides agents_dir)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// loadSettings reads the settings file and applies flag overrides.
func loadSettings(cmd *cobra.Command) (*settings.Settings, error) {
	path, _ := cmd.Flags().GetString("config")
	s, err := settings.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		s.AgentsDir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		s.LogLevel = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		s.LogFormat = format
	}
	return s, s.Validate()
}

// newLogger writes to stderr so stdout stays clean for reports and MCP stdio.
func newLogger(s *settings.Settings) (*slog.Logger, error) {
	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(os.Stderr, level, logging.Format(s.LogFormat)), nil
}

// newApp wires an App from the settings. Extra options are applied last.
func newApp(s *settings.Settings, logger *slog.Logger, opts ...stagecraft.Option) (*stagecraft.App, error) {
	tools, err := process.LoadTools(s.ToolsFile)
	if err != nil {
		return nil, err
	}
	base := []stagecraft.Option{
		stagecraft.WithLogger(logger),
		stagecraft.WithTools(tools),
		stagecraft.WithInlineShell(s.InlineShell),
		stagecraft.WithWorkspace(s.Workspace),
		stagecraft.WithWorkers(s.Workers),
		stagecraft.ContinueOnError(s.ContinueOnError),
		stagecraft.WithConfirmTimeout(s.ConfirmTimeout.Duration),
	}
	if s.OutputDir != "" {
		base = append(base, stagecraft.WithArchive(file.NewArchive(s.OutputDir)))
	}
	return stagecraft.New(s.AgentsDir, append(base, opts...)...)
}
