package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/stagecraft/internal/presentation/tui"
	"github.com/aretw0/stagecraft/pkg/domain"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [id]",
	Short: "List recorded tasks or show one",
	Long:  `Reads the task registry (the tasks directory, or Redis when redis.addr is set).`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		store, _, closeStore, err := taskStore(s)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := context.Background()
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			task, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			return printReport(out, task)
		}

		ids, err := store.List(ctx)
		if err != nil {
			return err
		}
		var list []*domain.Task
		for _, id := range ids {
			task, err := store.Load(ctx, id)
			if errors.Is(err, domain.ErrTaskNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			list = append(list, task)
		}
		slices.SortFunc(list, func(a, b *domain.Task) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
		for _, task := range list {
			tui.StatusLine(out, fmt.Sprintf("%s %s [%s]",
				task.ID, task.CreatedAt.Format("2006-01-02 15:04:05"), strings.Join(task.AgentNames(), ",")), task.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
