package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/garnizeh/jobsync/internal/dashboard"
	"github.com/garnizeh/jobsync/internal/jobs"
	"github.com/garnizeh/jobsync/internal/store"
)

// Background refresh job types.
const (
	JobReloadApplications = "reload.applications"
	JobReloadTasks        = "reload.tasks"
	JobReloadStageEvents  = "reload.stage_events"
	JobReloadAudit        = "reload.audit"
	JobRefreshStale       = "refresh.stale"
	JobRefreshDashboard   = "refresh.dashboard"
)

type refresh struct {
	typ   string
	appID int64
}

type refreshPayload struct {
	ApplicationID int64 `json:"applicationId,omitempty"`
}

func reloadApplications() refresh { return refresh{typ: JobReloadApplications} }
func reloadTasks(appID int64) refresh {
	return refresh{typ: JobReloadTasks, appID: appID}
}
func reloadStageEvents(appID int64) refresh {
	return refresh{typ: JobReloadStageEvents, appID: appID}
}

// confirmed lists the refreshes queued after any confirmed application change.
func confirmed(appID int64) []refresh {
	return []refresh{
		reloadApplications(),
		reloadStageEvents(appID),
		{typ: JobReloadAudit},
		{typ: JobRefreshStale},
		{typ: JobRefreshDashboard},
	}
}

// enqueue queues refreshes. They are fire and forget: a failure is retried by
// the pool and never rolls anything back.
func (c *Coordinator) enqueue(rs ...refresh) {
	for _, r := range rs {
		key := ""
		if r.appID != 0 {
			key = strconv.FormatInt(r.appID, 10)
		}
		if _, err := c.pool.Enqueue(r.typ, key, refreshPayload{ApplicationID: r.appID}); err != nil {
			logger.Warn("refresh not queued", "type", r.typ, "key", key, "err", err)
		}
	}
}

func (c *Coordinator) handlers() map[string]jobs.Handler {
	return map[string]jobs.Handler{
		JobReloadApplications: func(ctx context.Context, j *jobs.Job) error {
			_, err := c.store.ReloadApplications(ctx)
			return ignoreSuperseded(err)
		},
		JobReloadTasks: func(ctx context.Context, j *jobs.Job) error {
			id, err := payloadApp(j)
			if err != nil || id == 0 {
				return err
			}
			_, err = c.store.ReloadTasks(ctx, id)
			return ignoreSuperseded(err)
		},
		JobReloadStageEvents: func(ctx context.Context, j *jobs.Job) error {
			id, err := payloadApp(j)
			if err != nil || id == 0 {
				return err
			}
			_, err = c.store.ReloadStageEvents(ctx, id)
			return ignoreSuperseded(err)
		},
		JobReloadAudit: func(ctx context.Context, j *jobs.Job) error {
			_, err := c.store.LoadAudit(ctx, 0, c.auditSize)
			return ignoreSuperseded(err)
		},
		JobRefreshStale: func(ctx context.Context, j *jobs.Job) error {
			if c.dash == nil {
				return nil
			}
			_, err := c.dash.RefreshStale(ctx)
			return ignoreSuperseded(err)
		},
		JobRefreshDashboard: func(ctx context.Context, j *jobs.Job) error {
			if c.dash == nil {
				return nil
			}
			_, err := c.dash.Refresh(ctx)
			return ignoreSuperseded(err)
		},
	}
}

func payloadApp(j *jobs.Job) (int64, error) {
	var p refreshPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return 0, err
	}
	return p.ApplicationID, nil
}

func ignoreSuperseded(err error) error {
	if errors.Is(err, store.ErrSuperseded) || errors.Is(err, dashboard.ErrSuperseded) {
		return nil
	}
	return err
}
