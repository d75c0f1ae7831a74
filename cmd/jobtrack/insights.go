package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/garnizeh/jobsync/internal/engine"
	"github.com/garnizeh/jobsync/pkg/models"
)

func newDashboardCmd(app *App) *cobra.Command {
	var nextDays, activityDays int
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show stage counts, next actions and recent activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				if !cmd.Flags().Changed("days") {
					nextDays = app.cfg.Engine.NextActionsDays
				}
				if !cmd.Flags().Changed("activity") {
					activityDays = app.cfg.Engine.ActivityDays
				}
				snap, err := e.SetDashboardWindows(ctx, nextDays, activityDays)
				if err != nil {
					return err
				}
				bars := e.Activity()
				if app.JSON {
					return app.writeJSON(cmd, map[string]any{"snapshot": snap, "activity": bars})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Applications: %s, overdue tasks: %s\n", humanize.Comma(e.Dashboard().Total()), humanize.Comma(snap.Summary.OverdueTasks))
				rows := make([][]string, 0, len(models.Stages()))
				for _, st := range models.Stages() {
					rows = append(rows, []string{string(st), strconv.FormatInt(snap.Summary.StageCounts[st], 10)})
				}
				if err := table(out, []string{"STAGE", "COUNT"}, rows); err != nil {
					return err
				}

				fmt.Fprintf(out, "\nDue in the next %d days:\n", nextDays)
				for _, t := range snap.NextActions.DueSoonTasks {
					fmt.Fprintf(out, "  task %d (app %d) %s, due %s\n", t.ID, t.ApplicationID, t.Title, dueText(t))
				}
				fmt.Fprintln(out, "Stale:")
				for _, a := range snap.NextActions.StaleApplications {
					fmt.Fprintf(out, "  #%d %s, %s (%s) touched %s\n", a.ID, a.Company, a.Role, a.Stage, ago(a.LastTouchAt))
				}

				fmt.Fprintf(out, "\nActivity, last %d days (stage changes | task completions):\n", activityDays)
				for _, b := range bars {
					fmt.Fprintf(out, "  %s %-20s %3d | %-20s %3d\n", b.Date, bar(b.TransitionRatio, 20), b.StageTransitions, bar(b.CompletionRatio, 20), b.TaskCompletions)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&nextDays, "days", 7, "Next actions window in days")
	cmd.Flags().IntVar(&activityDays, "activity", 7, "Activity window: 7 or 30 days")
	return cmd
}

func newAuditCmd(app *App) *cobra.Command {
	var page int
	var selected int64
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit feed, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				events, err := e.LoadAudit(ctx, page)
				if err != nil {
					return err
				}
				if selected != 0 {
					e.SelectAudit(selected)
				}
				if app.JSON {
					return app.writeJSON(cmd, events)
				}
				rows := make([][]string, 0, len(events))
				for _, ev := range events {
					entity := ev.EntityType
					if ev.EntityID != nil {
						entity += " " + strconv.FormatInt(*ev.EntityID, 10)
					}
					rows = append(rows, []string{strconv.FormatInt(ev.ID, 10), humanize.Time(ev.CreatedAt), ev.Type, entity})
				}
				if err := table(cmd.OutOrStdout(), []string{"ID", "WHEN", "TYPE", "ENTITY"}, rows); err != nil {
					return err
				}
				if ev, ok := e.SelectedAudit(); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "\nEvent %d payload: %s\n", ev.ID, ev.Payload)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page number, from 0")
	cmd.Flags().Int64Var(&selected, "show", 0, "Event id whose payload to print (default: newest)")
	return cmd
}
