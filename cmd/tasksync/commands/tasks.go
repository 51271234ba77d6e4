package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/ports"
)

// Output formats of the list command
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// NewListCommand prints the local task collection
func NewListCommand(flags *GlobalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), flags, nil)
			if err != nil {
				return err
			}
			defer a.close()

			return renderList(cmd.OutOrStdout(), output, a.tasks.ListTasks(cmd.Context()))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", OutputTable, "output format (table, json, yaml)")
	return cmd
}

// NewAddCommand creates a Pending task locally
func NewAddCommand(flags *GlobalFlags) *cobra.Command {
	var req ports.CreateTaskRequest
	var priority string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), flags, consoleSinks(cmd))
			if err != nil {
				return err
			}
			defer a.close()

			req.Title = args[0]
			req.Priority = entities.Priority(priority)

			task, err := a.tasks.AddTask(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", task.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "task description")
	cmd.Flags().StringVar(&req.DueDate, "due", "", "due date (YYYY-MM-DD, required)")
	cmd.Flags().StringVarP(&priority, "priority", "p", string(entities.PriorityMedium), "priority (Low, Medium, High)")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

// NewDeleteCommand removes a task locally and waits for the webhook notification
func NewDeleteCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), flags, consoleSinks(cmd))
			if err != nil {
				return err
			}
			defer a.close()

			return a.tasks.DeleteTask(cmd.Context(), args[0])
		},
	}
}

// NewToggleCommand flips a task between Pending and Completed
func NewToggleCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Toggle a task between Pending and Completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), flags, nil)
			if err != nil {
				return err
			}
			defer a.close()

			task, err := a.tasks.ToggleTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", task.ID, task.Status)
			return nil
		},
	}
}

// NewFetchCommand replaces the local tasks with the webhook's list
func NewFetchCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Load all tasks from the webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), flags, consoleSinks(cmd))
			if err != nil {
				return err
			}
			defer a.close()

			_, err = a.sync.Refresh(cmd.Context())
			return err
		},
	}
}

// NewSyncCommand pushes the local tasks and adopts the webhook's answer
func NewSyncCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync local tasks with the webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), flags, consoleSinks(cmd))
			if err != nil {
				return err
			}
			defer a.close()

			_, err = a.sync.Sync(cmd.Context())
			return err
		},
	}
}

func renderList(out io.Writer, format string, list *ports.TaskListResponse) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case OutputYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return err
		}
		return enc.Close()
	case OutputTable, "":
		return renderTable(out, list)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(out io.Writer, list *ports.TaskListResponse) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tSTATUS\tPRIORITY\tDUE\tTITLE")
	for i, task := range list.Tasks {
		number := "-"
		if n := list.PendingNumbers[i]; n > 0 {
			number = strconv.Itoa(n)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", number, task.ID, task.Status, task.Priority, task.DueDate, task.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	lastSync := "never"
	if list.LastSync != nil {
		lastSync = *list.LastSync
	}
	_, err := fmt.Fprintf(out, "\nTotal: %d  Pending: %d  Completed: %d  Last sync: %s\n",
		list.Stats.Total, list.Stats.Pending, list.Stats.Completed, lastSync)
	return err
}
