package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/garnizeh/jobsync/pkg/models"
)

func (c *Client) ListApplications(ctx context.Context, stage *models.Stage) ([]models.Application, error) {
	var q url.Values
	if stage != nil {
		q = url.Values{"stage": {string(*stage)}}
	}
	out := []models.Application{}
	err := c.do(ctx, call{method: http.MethodGet, path: "/applications", query: q}, &out)
	return out, err
}

func (c *Client) CreateApplication(ctx context.Context, in models.ApplicationInput) (models.Application, error) {
	var out models.Application
	err := c.do(ctx, call{method: http.MethodPost, path: "/applications", body: in}, &out)
	return out, err
}

func (c *Client) UpdateApplication(ctx context.Context, id int64, in models.ApplicationInput) (models.Application, error) {
	var out models.Application
	err := c.do(ctx, call{method: http.MethodPut, path: appPath(id), body: in}, &out)
	return out, err
}

type stageRequest struct {
	Stage models.Stage `json:"stage"`
}

func (c *Client) TransitionStage(ctx context.Context, id int64, stage models.Stage) (models.Application, error) {
	var out models.Application
	err := c.do(ctx, call{method: http.MethodPatch, path: appPath(id) + "/stage", body: stageRequest{Stage: stage}}, &out)
	return out, err
}

func (c *Client) DeleteApplication(ctx context.Context, id int64) error {
	return c.do(ctx, call{method: http.MethodDelete, path: appPath(id)}, nil)
}

// ListStale returns applications not touched for more than days days.
func (c *Client) ListStale(ctx context.Context, days int) ([]models.Application, error) {
	out := []models.Application{}
	err := c.do(ctx, call{method: http.MethodGet, path: "/applications/stale", query: daysQuery(days)}, &out)
	return out, err
}

func (c *Client) ListStageEvents(ctx context.Context, applicationID int64) ([]models.StageEvent, error) {
	out := []models.StageEvent{}
	err := c.do(ctx, call{method: http.MethodGet, path: appPath(applicationID) + "/stage-events"}, &out)
	return out, err
}

func (c *Client) ListTasks(ctx context.Context, applicationID int64) ([]models.Task, error) {
	out := []models.Task{}
	err := c.do(ctx, call{method: http.MethodGet, path: appPath(applicationID) + "/tasks"}, &out)
	return out, err
}

func (c *Client) CreateTask(ctx context.Context, applicationID int64, in models.TaskInput) (models.Task, error) {
	var out models.Task
	err := c.do(ctx, call{method: http.MethodPost, path: appPath(applicationID) + "/tasks", body: in}, &out)
	return out, err
}

func (c *Client) UpdateTask(ctx context.Context, id int64, in models.TaskInput) (models.Task, error) {
	var out models.Task
	err := c.do(ctx, call{method: http.MethodPut, path: taskPath(id), body: in}, &out)
	return out, err
}

type statusRequest struct {
	Status models.TaskStatus `json:"status"`
}

func (c *Client) UpdateTaskStatus(ctx context.Context, id int64, status models.TaskStatus) (models.Task, error) {
	var out models.Task
	err := c.do(ctx, call{method: http.MethodPatch, path: taskPath(id) + "/status", body: statusRequest{Status: status}}, &out)
	return out, err
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, call{method: http.MethodDelete, path: taskPath(id)}, nil)
}

func (c *Client) ListAuditEvents(ctx context.Context, page, size int) ([]models.AuditEvent, error) {
	q := url.Values{"page": {strconv.Itoa(page)}, "size": {strconv.Itoa(size)}}
	out := []models.AuditEvent{}
	err := c.do(ctx, call{method: http.MethodGet, path: "/audit-events", query: q}, &out)
	return out, err
}

func (c *Client) Summary(ctx context.Context) (models.Summary, error) {
	var out models.Summary
	err := c.do(ctx, call{method: http.MethodGet, path: "/dashboard/summary", schema: schemaSummary}, &out)
	return out, err
}

func (c *Client) NextActions(ctx context.Context, days int) (models.NextActions, error) {
	var out models.NextActions
	err := c.do(ctx, call{method: http.MethodGet, path: "/dashboard/next-actions", query: daysQuery(days), schema: schemaNextActions}, &out)
	return out, err
}

func (c *Client) Activity(ctx context.Context, days int) (models.Activity, error) {
	var out models.Activity
	err := c.do(ctx, call{method: http.MethodGet, path: "/dashboard/activity", query: daysQuery(days), schema: schemaActivity}, &out)
	return out, err
}

// Metrics returns the server's global counters.
func (c *Client) Metrics(ctx context.Context) (models.Metrics, error) {
	var out models.Metrics
	err := c.do(ctx, call{method: http.MethodGet, path: "/metrics"}, &out)
	return out, err
}

// Health pings the API.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	if err := c.do(ctx, call{method: http.MethodGet, path: "/health", anonymous: true}, &out); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if out["status"] != "" && out["status"] != "UP" {
		return fmt.Errorf("health check failed: status %s", out["status"])
	}
	return nil
}

func appPath(id int64) string  { return "/applications/" + strconv.FormatInt(id, 10) }
func taskPath(id int64) string { return "/tasks/" + strconv.FormatInt(id, 10) }

func daysQuery(days int) url.Values {
	return url.Values{"days": {strconv.Itoa(days)}}
}
