package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/scheduler/internal/storage"
	"github.com/nextlevelbuilder/scheduler/internal/task"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage one-shot tasks against the on-disk queue",
	}
	cmd.AddCommand(taskAddCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskCancelCmd())
	return cmd
}

func openStore() (*storage.Store, error) {
	return storage.New(storage.Config{
		DataDir:     cfg.DataDir,
		LockTimeout: cfg.LockTimeout,
		MaxHistory:  cfg.MaxHistory,
	})
}

func taskAddCmd() *cobra.Command {
	var (
		workspace    string
		timeoutMS    int64
		autoApprove  bool
		allowedTools []string
		extraArgs    string
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "add [prompt]",
		Short: "Queue a new one-shot task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			t := task.NewTask(args[0], workspace, timeoutMS, autoApprove, allowedTools)
			t.ExtraArgs = extraArgs
			if err := task.ValidateTask(t); err != nil {
				return err
			}
			if err := store.Queue.Add(t); err != nil {
				return err
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(t, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			fmt.Printf("Queued task %s\n", t.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", ".", "workspace directory the agent runs in")
	cmd.Flags().Int64Var(&timeoutMS, "timeout-ms", task.DefaultTimeoutMS, "timeout in milliseconds")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "run with bypassPermissions instead of prompting")
	cmd.Flags().StringSliceVar(&allowedTools, "allowed-tools", nil, "comma-separated tool allowlist")
	cmd.Flags().StringVar(&extraArgs, "extra-args", "", "raw extra flags forwarded to the agent binary")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func taskListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued and running tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			queued := store.Queue.GetAll()
			running := store.Running.GetAll()

			if jsonOutput {
				data, _ := json.MarshalIndent(map[string]any{
					"queue":   queued,
					"running": running,
				}, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPROMPT\tWORKSPACE")
			for _, t := range queued {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Status, truncate(t.Prompt, 40), t.Workspace)
			}
			for _, t := range running {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Status, truncate(t.Prompt, 40), t.Workspace)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func taskCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [taskId]",
		Short: "Remove a queued task before it starts running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			ok, err := store.Queue.Remove(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no such queued task: %s", args[0])
			}
			fmt.Printf("Cancelled task %s\n", args[0])
			return nil
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
