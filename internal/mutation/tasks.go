package mutation

import (
	"context"
	"fmt"

	"github.com/garnizeh/jobsync/pkg/models"
)

func byTaskID(id int64) func(models.Task) bool {
	return func(t models.Task) bool { return t.ID == id }
}

func replaceTask(t models.Task) func(models.Task) models.Task {
	return func(models.Task) models.Task { return t }
}

// taskConfirmed lists the refreshes queued after a confirmed task change.
func taskConfirmed(appID int64) []refresh {
	return []refresh{reloadTasks(appID), {typ: JobReloadAudit}, {typ: JobRefreshDashboard}}
}

func (c *Coordinator) CreateTask(ctx context.Context, applicationID int64, in models.TaskInput) (models.Task, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Task{}, err
	}

	now := c.now()
	placeholder := in.Apply(models.Task{
		ID:            c.nextTempID(),
		ApplicationID: applicationID,
		Status:        models.TaskOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	c.store.InsertTask(placeholder)

	t, err := c.remote.CreateTask(ctx, applicationID, in)
	if err != nil {
		return placeholder, c.settle("create task", err, func() {
			c.store.RemoveTask(placeholder.ID)
		}, reloadTasks(applicationID))
	}

	if !c.store.ReplaceTask(placeholder.ID, t) {
		c.store.InsertTask(t)
	}
	c.enqueue(taskConfirmed(applicationID)...)
	return t, nil
}

func (c *Coordinator) UpdateTask(ctx context.Context, id int64, in models.TaskInput) (models.Task, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Task{}, err
	}
	snap, _, ok := c.store.Task(id)
	if !ok {
		return models.Task{}, notLoaded("task", id)
	}

	optimistic := in.Apply(snap)
	optimistic.UpdatedAt = c.now()
	c.store.ApplyTasks(byTaskID(id), replaceTask(optimistic))

	t, err := c.remote.UpdateTask(ctx, id, in)
	if err != nil {
		return optimistic, c.settle("update task", err, func() {
			c.store.RestoreTask(snap)
		}, reloadTasks(snap.ApplicationID))
	}

	c.store.ApplyTasks(byTaskID(id), replaceTask(t))
	c.enqueue(taskConfirmed(snap.ApplicationID)...)
	return t, nil
}

// ToggleTask flips a task between OPEN and DONE.
func (c *Coordinator) ToggleTask(ctx context.Context, id int64) (models.Task, error) {
	snap, _, ok := c.store.Task(id)
	if !ok {
		return models.Task{}, notLoaded("task", id)
	}
	next := models.TaskDone
	if snap.Status == models.TaskDone {
		next = models.TaskOpen
	}
	return c.SetTaskStatus(ctx, id, next)
}

// SetTaskStatus moves a task to status. Only completedAt and the status
// change locally; the list is re-sorted.
func (c *Coordinator) SetTaskStatus(ctx context.Context, id int64, status models.TaskStatus) (models.Task, error) {
	snap, _, ok := c.store.Task(id)
	if !ok {
		return models.Task{}, notLoaded("task", id)
	}
	if snap.Status == status {
		return snap, &models.ValidationError{Field: "status", Message: fmt.Sprintf("Task is already %s.", status)}
	}

	optimistic := snap.WithStatus(status, c.now())
	c.store.ApplyTasks(byTaskID(id), replaceTask(optimistic))

	t, err := c.remote.UpdateTaskStatus(ctx, id, status)
	if err != nil {
		return optimistic, c.settle("update task status", err, func() {
			c.store.RestoreTask(snap)
		}, reloadTasks(snap.ApplicationID))
	}

	c.store.ApplyTasks(byTaskID(id), replaceTask(t))
	c.enqueue(taskConfirmed(snap.ApplicationID)...)
	return t, nil
}

func (c *Coordinator) DeleteTask(ctx context.Context, id int64) error {
	snap, ok := c.store.RemoveTask(id)
	if !ok {
		return notLoaded("task", id)
	}

	if err := c.remote.DeleteTask(ctx, id); err != nil {
		return c.settle("delete task", err, func() {
			c.store.RestoreTask(snap)
		}, reloadTasks(snap.ApplicationID))
	}

	c.enqueue(taskConfirmed(snap.ApplicationID)...)
	return nil
}
