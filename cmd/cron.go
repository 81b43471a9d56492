package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/scheduler/internal/cron"
	"github.com/nextlevelbuilder/scheduler/internal/task"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage cron-driven scheduled tasks",
	}
	cmd.AddCommand(cronAddCmd())
	cmd.AddCommand(cronListCmd())
	cmd.AddCommand(cronDeleteCmd())
	cmd.AddCommand(cronImportCmd())
	cmd.AddCommand(cronExportCmd())
	return cmd
}

func cronAddCmd() *cobra.Command {
	var (
		name         string
		prompt       string
		workspace    string
		timeoutMS    int64
		autoApprove  bool
		allowedTools []string
		condition    string
	)

	cmd := &cobra.Command{
		Use:   "add [cron-expression]",
		Short: "Create a new scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := cron.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid cron expression: %w", err)
			}
			if err := task.ValidateScheduledName(name); err != nil {
				return err
			}
			if err := task.ValidatePrompt(prompt); err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			st := task.NewScheduledTask(name, prompt, args[0], workspace, timeoutMS, autoApprove, allowedTools)
			st.Condition = condition
			if next, ok := expr.NextFire(time.Now().UTC()); ok {
				st.NextRun = &next
			}
			if err := store.Scheduled.Save(st); err != nil {
				return err
			}
			fmt.Printf("Created scheduled task %s (%s), next run %s\n", st.ID, st.Name, formatNextRun(st.NextRun))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "scheduled task name")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt sent to the agent on each run")
	cmd.Flags().StringVar(&workspace, "workspace", ".", "workspace directory the agent runs in")
	cmd.Flags().Int64Var(&timeoutMS, "timeout-ms", task.DefaultTimeoutMS, "timeout in milliseconds")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "run with bypassPermissions instead of prompting")
	cmd.Flags().StringSliceVar(&allowedTools, "allowed-tools", nil, "comma-separated tool allowlist")
	cmd.Flags().StringVar(&condition, "condition", "", "optional CEL predicate over weekday/hour gating materialization")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

func cronListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			all := store.Scheduled.GetAll()
			if jsonOutput {
				data, _ := json.MarshalIndent(all, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCRON\tENABLED\tNEXT RUN")
			for _, st := range all {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", st.ID, st.Name, st.Cron, st.Enabled, formatNextRun(st.NextRun))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func cronDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [scheduledId]",
		Short: "Delete a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			ok, err := store.Scheduled.Delete(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no such scheduled task: %s", args[0])
			}
			fmt.Printf("Deleted scheduled task %s\n", args[0])
			return nil
		},
	}
}

// scheduledTaskFile is the on-disk shape for bulk import/export: a thin,
// human-editable YAML wrapper around the same ScheduledTask fields the API
// accepts, so an operator can check a fleet of cron jobs into version
// control and replay them onto a fresh data directory.
type scheduledTaskFile struct {
	Tasks []scheduledTaskEntry `yaml:"tasks"`
}

type scheduledTaskEntry struct {
	Name         string   `yaml:"name"`
	Prompt       string   `yaml:"prompt"`
	Cron         string   `yaml:"cron"`
	Workspace    string   `yaml:"workspace"`
	TimeoutMS    int64    `yaml:"timeout_ms"`
	AutoApprove  bool     `yaml:"auto_approve"`
	AllowedTools []string `yaml:"allowed_tools,omitempty"`
	Enabled      bool     `yaml:"enabled"`
	Condition    string   `yaml:"condition,omitempty"`
}

func cronImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk-create scheduled tasks from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var doc scheduledTaskFile
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("parsing %s: %w", file, err)
			}

			store, err := openStore()
			if err != nil {
				return err
			}

			imported := 0
			for _, entry := range doc.Tasks {
				if err := task.ValidateScheduledName(entry.Name); err != nil {
					return fmt.Errorf("%s: %w", entry.Name, err)
				}
				if err := task.ValidatePrompt(entry.Prompt); err != nil {
					return fmt.Errorf("%s: %w", entry.Name, err)
				}
				expr, err := cron.Parse(entry.Cron)
				if err != nil {
					return fmt.Errorf("%s: invalid cron expression: %w", entry.Name, err)
				}
				st := task.NewScheduledTask(entry.Name, entry.Prompt, entry.Cron, entry.Workspace, entry.TimeoutMS, entry.AutoApprove, entry.AllowedTools)
				st.Enabled = entry.Enabled
				st.Condition = entry.Condition
				if st.Enabled {
					if next, ok := expr.NextFire(time.Now().UTC()); ok {
						st.NextRun = &next
					}
				}
				if err := store.Scheduled.Save(st); err != nil {
					return err
				}
				imported++
			}
			fmt.Printf("Imported %d scheduled task(s) from %s\n", imported, file)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "tasks.yaml", "YAML file of scheduled tasks to import")
	cmd.MarkFlagRequired("file")
	return cmd
}

func cronExportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every scheduled task to a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			var doc scheduledTaskFile
			for _, st := range store.Scheduled.GetAll() {
				doc.Tasks = append(doc.Tasks, scheduledTaskEntry{
					Name:         st.Name,
					Prompt:       st.Prompt,
					Cron:         st.Cron,
					Workspace:    st.Workspace,
					TimeoutMS:    st.TimeoutMS,
					AutoApprove:  st.AutoApprove,
					AllowedTools: st.AllowedTools,
					Enabled:      st.Enabled,
					Condition:    st.Condition,
				})
			}
			out, err := yaml.Marshal(doc)
			if err != nil {
				return err
			}
			if err := os.WriteFile(file, out, 0o644); err != nil {
				return err
			}
			fmt.Printf("Exported %d scheduled task(s) to %s\n", len(doc.Tasks), file)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "tasks.yaml", "destination YAML file")
	return cmd
}

func formatNextRun(t *time.Time) string {
	if t == nil {
		return "n/a"
	}
	return t.Format(time.RFC3339)
}
