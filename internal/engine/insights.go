package engine

import (
	"context"

	"github.com/garnizeh/jobsync/internal/dashboard"
	"github.com/garnizeh/jobsync/pkg/models"
)

// RefreshDashboard reloads the summary, next actions and activity.
func (e *Engine) RefreshDashboard(ctx context.Context) (dashboard.Snapshot, error) {
	return e.dash.Refresh(ctx)
}

// SetDashboardWindows changes the next-actions and activity windows and
// refreshes.
func (e *Engine) SetDashboardWindows(ctx context.Context, nextActionsDays, activityDays int) (dashboard.Snapshot, error) {
	if err := e.dash.SetWindows(nextActionsDays, activityDays); err != nil {
		return dashboard.Snapshot{}, err
	}
	return e.dash.Refresh(ctx)
}

// Activity returns one histogram bar per day of the activity window.
func (e *Engine) Activity() []dashboard.Bar { return e.dash.Bars() }

// Stale returns applications untouched for the stale window, oldest first.
func (e *Engine) Stale() []models.Application { return e.dash.Stale() }

func (e *Engine) SetStaleDays(ctx context.Context, days int) ([]models.Application, error) {
	return e.dash.SetStaleDays(ctx, days)
}

// LoadAudit replaces the audit feed with one page.
func (e *Engine) LoadAudit(ctx context.Context, page int) ([]models.AuditEvent, error) {
	return e.store.LoadAudit(ctx, page, e.cfg.Engine.AuditPageSize)
}

func (e *Engine) AuditEvents() []models.AuditEvent { return e.store.AuditEvents() }

func (e *Engine) SelectAudit(id int64) { e.store.SelectAudit(id) }

// SelectedAudit returns the selected audit event, defaulting to the newest.
func (e *Engine) SelectedAudit() (models.AuditEvent, bool) { return e.store.SelectedAudit() }
