package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/garnizeh/jobsync/internal/engine"
	"github.com/garnizeh/jobsync/pkg/models"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, &models.ValidationError{Field: "id", Message: fmt.Sprintf("invalid id %q", s)}
	}
	return id, nil
}

func newAppsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "apps",
		Aliases: []string{"applications"},
		Short:   "Manage job applications",
	}
	cmd.AddCommand(newAppsListCmd(app))
	cmd.AddCommand(newAppsCreateCmd(app))
	cmd.AddCommand(newAppsUpdateCmd(app))
	cmd.AddCommand(newAppsMoveCmd(app))
	cmd.AddCommand(newAppsDeleteCmd(app))
	cmd.AddCommand(newAppsHistoryCmd(app))
	cmd.AddCommand(newAppsStaleCmd(app))
	return cmd
}

func (app *App) printApplications(cmd *cobra.Command, apps []models.Application) error {
	if app.JSON {
		return app.writeJSON(cmd, apps)
	}
	rows := make([][]string, 0, len(apps))
	for _, a := range apps {
		rows = append(rows, []string{strconv.FormatInt(a.ID, 10), a.Company, a.Role, string(a.Stage), ago(a.LastTouchAt)})
	}
	return table(cmd.OutOrStdout(), []string{"ID", "COMPANY", "ROLE", "STAGE", "TOUCHED"}, rows)
}

func newAppsListCmd(app *App) *cobra.Command {
	var stage string
	var board bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications, most recently touched first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var filter *models.Stage
				if stage != "" {
					st, err := models.ParseStage(stage)
					if err != nil {
						return err
					}
					filter = &st
				}
				apps, err := e.LoadApplications(ctx, filter)
				if err != nil {
					return err
				}
				if !board {
					return app.printApplications(cmd, apps)
				}
				cols := e.Board()
				if app.JSON {
					return app.writeJSON(cmd, cols)
				}
				for _, col := range cols {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (%d)\n", col.Stage, len(col.Applications))
					for _, a := range col.Applications {
						fmt.Fprintf(cmd.OutOrStdout(), "  #%d %s, %s\n", a.ID, a.Company, a.Role)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Only list applications in this stage")
	cmd.Flags().BoolVar(&board, "board", false, "Group by stage")
	return cmd
}

type appFlags struct {
	company, role, url, location, notes string
}

func (f *appFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.company, "company", "", "Company name")
	cmd.Flags().StringVar(&f.role, "role", "", "Role title")
	cmd.Flags().StringVar(&f.url, "url", "", "Job posting URL")
	cmd.Flags().StringVar(&f.location, "location", "", "Location")
	cmd.Flags().StringVar(&f.notes, "notes", "", "Notes")
}

// input overlays the flags that were set on base.
func (f *appFlags) input(cmd *cobra.Command, base models.ApplicationInput) models.ApplicationInput {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("company") {
		base.Company = f.company
	}
	if set("role") {
		base.Role = f.role
	}
	if set("url") {
		base.JobURL = &f.url
	}
	if set("location") {
		base.Location = &f.location
	}
	if set("notes") {
		base.Notes = &f.notes
	}
	return base
}

func newAppsCreateCmd(app *App) *cobra.Command {
	var f appFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an application in SAVED",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				if _, err := e.LoadApplications(ctx, nil); err != nil {
					return err
				}
				a, err := e.CreateApplication(ctx, f.input(cmd, models.ApplicationInput{}))
				if err = warnReconciling(cmd, err); err != nil {
					return err
				}
				if app.JSON {
					return app.writeJSON(cmd, a)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created application %d: %s, %s\n", a.ID, a.Company, a.Role)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newAppsUpdateCmd(app *App) *cobra.Command {
	var f appFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit an application's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if _, err := e.LoadApplications(ctx, nil); err != nil {
					return err
				}
				cur, ok := e.Application(id)
				if !ok {
					return fmt.Errorf("application %d not found", id)
				}
				base := models.ApplicationInput{Company: cur.Company, Role: cur.Role, JobURL: cur.JobURL, Location: cur.Location, Notes: cur.Notes}
				a, err := e.UpdateApplication(ctx, id, f.input(cmd, base))
				if err = warnReconciling(cmd, err); err != nil {
					return err
				}
				if app.JSON {
					return app.writeJSON(cmd, a)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated application %d\n", a.ID)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newAppsMoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <stage>",
		Short: "Move an application to another stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				stage, err := models.ParseStage(args[1])
				if err != nil {
					return err
				}
				if _, err := e.LoadApplications(ctx, nil); err != nil {
					return err
				}
				a, err := e.MoveApplication(ctx, id, stage)
				if err = warnReconciling(cmd, err); err != nil {
					if next, nerr := e.NextStages(id); nerr == nil && len(next) > 0 {
						fmt.Fprintf(cmd.ErrOrStderr(), "allowed next stages: %v\n", next)
					}
					return err
				}
				if app.JSON {
					return app.writeJSON(cmd, a)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Application %d is now %s\n", a.ID, a.Stage)
				return nil
			})
		},
	}
}

func newAppsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an application with its tasks and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if _, err := e.LoadApplications(ctx, nil); err != nil {
					return err
				}
				if err := warnReconciling(cmd, e.DeleteApplication(ctx, id)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted application %d\n", id)
				return nil
			})
		},
	}
}

func newAppsHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show stage changes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := e.OpenApplication(ctx, id); err != nil {
					return err
				}
				events := e.History()
				if app.JSON {
					return app.writeJSON(cmd, events)
				}
				rows := make([][]string, 0, len(events))
				for _, ev := range events {
					from, to := "-", "-"
					if ev.FromStage != nil {
						from = string(*ev.FromStage)
					}
					if ev.ToStage != nil {
						to = string(*ev.ToStage)
					}
					rows = append(rows, []string{ago(&ev.CreatedAt), from, to, deref(ev.Actor), deref(ev.Note)})
				}
				return table(cmd.OutOrStdout(), []string{"WHEN", "FROM", "TO", "ACTOR", "NOTE"}, rows)
			})
		},
	}
}

func newAppsStaleCmd(app *App) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List applications untouched for a while, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				if !cmd.Flags().Changed("days") {
					days = app.cfg.Engine.StaleDays
				}
				apps, err := e.SetStaleDays(ctx, days)
				if err != nil {
					return err
				}
				return app.printApplications(cmd, apps)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 14, "Days without activity")
	return cmd
}
