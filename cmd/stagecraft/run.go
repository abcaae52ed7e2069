package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/stagecraft"
	"github.com/aretw0/stagecraft/internal/presentation/tui"
	"github.com/aretw0/stagecraft/pkg/domain"
)

var runCmd = &cobra.Command{
	Use:   "run <agent> [agent...]",
	Short: "Run agents as one task and print the report",
	Long: `Runs the named agents sequentially as a single task and prints a report of every action.
Confirmations are asked on the terminal unless --yes is given.
An interrupt stops the task at its next stage boundary.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("continue-on-error") {
			s.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
		}
		logger, err := newLogger(s)
		if err != nil {
			return err
		}
		vars, err := parseVars(cmd)
		if err != nil {
			return err
		}

		_, storeOpts, closeStore, err := taskStore(s)
		if err != nil {
			return err
		}
		defer closeStore()

		app, err := newApp(s, logger, storeOpts...)
		if err != nil {
			return fmt.Errorf("failed to initialize stagecraft: %w", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		task, err := app.Submit(ctx, args, vars)
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go answerConfirmations(watchCtx, app, os.Stdin, cmd.ErrOrStderr(), yes)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigs)
		go func() {
			select {
			case <-sigs:
				fmt.Fprintln(cmd.ErrOrStderr(), "\nStopping task...")
				_ = app.Stop(context.Background(), task.ID)
			case <-watchCtx.Done():
			}
		}()

		done, err := app.Manager().Wait(ctx, task.ID)
		if err != nil {
			return err
		}
		stopWatch()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(shutdownCtx)

		if err := printReport(cmd.OutOrStdout(), done); err != nil {
			return err
		}
		if done.Status != domain.StatusSuccess {
			return fmt.Errorf("task %s finished with status %s", done.ID, done.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayP("var", "v", nil, "Context variable as key=value (repeatable)")
	runCmd.Flags().String("context", "", "JSON object seeding the run context")
	runCmd.Flags().BoolP("yes", "y", false, "Approve every confirmation")
	runCmd.Flags().Bool("continue-on-error", false, "Keep running the remaining agents after a failure")
}

// parseVars merges --context and --var; --var wins.
func parseVars(cmd *cobra.Command) (map[string]any, error) {
	vars := map[string]any{}
	if raw, _ := cmd.Flags().GetString("context"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return nil, fmt.Errorf("invalid --context: %w", err)
		}
	}
	pairs, _ := cmd.Flags().GetStringArray("var")
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", pair)
		}
		vars[k] = v
	}
	return vars, nil
}

// answerConfirmations resolves pending confirmations from in until ctx ends.
func answerConfirmations(ctx context.Context, app *stagecraft.App, in io.Reader, out io.Writer, yes bool) {
	confirms := app.Confirmations()
	reader := bufio.NewReader(in)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, runID := range confirms.Pending() {
			prompt, ok := confirms.Prompt(runID)
			if !ok {
				continue
			}
			if yes {
				fmt.Fprintf(out, "%s [auto-approved]\n", prompt)
				_ = confirms.Resolve(runID, true)
				continue
			}
			fmt.Fprintf(out, "%s [y/N]: ", prompt)
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				_ = confirms.Resolve(runID, false)
				continue
			}
			answer := strings.ToLower(strings.TrimSpace(line))
			_ = confirms.Resolve(runID, answer == "y" || answer == "yes")
		}
	}
}

func printReport(w io.Writer, task *domain.Task) error {
	render := tui.NewRenderer(w)
	out, err := render(tui.TaskMarkdown(task))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}
