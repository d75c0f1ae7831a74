package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/garnizeh/jobsync/internal/engine"
	"github.com/garnizeh/jobsync/internal/taskview"
	"github.com/garnizeh/jobsync/pkg/models"
)

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage follow-up tasks of an application",
	}
	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksAddCmd(app))
	cmd.AddCommand(newTasksStatusCmd(app, "done", models.TaskDone))
	cmd.AddCommand(newTasksStatusCmd(app, "reopen", models.TaskOpen))
	cmd.AddCommand(newTasksDeleteCmd(app))
	return cmd
}

// parseDue accepts RFC 3339 or a bare date, which means noon local time.
func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, &models.ValidationError{Field: "due", Message: fmt.Sprintf("invalid date %q, want YYYY-MM-DD or RFC 3339", s)}
	}
	d = d.Add(12 * time.Hour)
	return &d, nil
}

func dueText(t models.Task) string {
	if t.DueAt == nil {
		return "-"
	}
	return t.DueAt.Local().Format("2006-01-02 15:04") + " (" + ago(t.DueAt) + ")"
}

func (app *App) printTasks(cmd *cobra.Command, tasks []models.Task) error {
	if app.JSON {
		return app.writeJSON(cmd, tasks)
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{strconv.FormatInt(t.ID, 10), string(t.Status), t.Title, dueText(t)})
	}
	return table(cmd.OutOrStdout(), []string{"ID", "STATUS", "TITLE", "DUE"}, rows)
}

// openApp parses the application id argument and loads its tasks.
func openApp(ctx context.Context, e *engine.Engine, arg string) (int64, error) {
	id, err := parseID(arg)
	if err != nil {
		return 0, err
	}
	if err := e.OpenApplication(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}

func newTasksListCmd(app *App) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list <app-id>",
		Short: "List tasks: open by due date, then done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				f, err := taskview.ParseFilter(filter)
				if err != nil {
					return err
				}
				if _, err := openApp(ctx, e, args[0]); err != nil {
					return err
				}
				return app.printTasks(cmd, e.Tasks(f))
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "all, due-today, due-week, overdue or done")
	return cmd
}

func newTasksAddCmd(app *App) *cobra.Command {
	var title, due, notes string
	cmd := &cobra.Command{
		Use:   "add <app-id>",
		Short: "Add a task to an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				dueAt, err := parseDue(due)
				if err != nil {
					return err
				}
				id, err := openApp(ctx, e, args[0])
				if err != nil {
					return err
				}
				in := models.TaskInput{Title: title, DueAt: dueAt}
				if notes != "" {
					in.Notes = &notes
				}
				t, err := e.CreateTask(ctx, id, in)
				if err = warnReconciling(cmd, err); err != nil {
					return err
				}
				if app.JSON {
					return app.writeJSON(cmd, t)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added task %d: %s\n", t.ID, t.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Task title")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTasksStatusCmd(app *App, use string, status models.TaskStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <app-id> <task-id>",
		Short: "Mark a task " + string(status),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				if _, err := openApp(ctx, e, args[0]); err != nil {
					return err
				}
				id, err := parseID(args[1])
				if err != nil {
					return err
				}
				t, err := e.SetTaskStatus(ctx, id, status)
				if err = warnReconciling(cmd, err); err != nil {
					return err
				}
				if app.JSON {
					return app.writeJSON(cmd, t)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d is %s\n", t.ID, t.Status)
				return nil
			})
		},
	}
}

func newTasksDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <app-id> <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				if _, err := openApp(ctx, e, args[0]); err != nil {
					return err
				}
				id, err := parseID(args[1])
				if err != nil {
					return err
				}
				if err := warnReconciling(cmd, e.DeleteTask(ctx, id)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d\n", id)
				return nil
			})
		},
	}
}
