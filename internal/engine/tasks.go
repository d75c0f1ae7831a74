package engine

import (
	"context"

	"github.com/garnizeh/jobsync/internal/taskview"
	"github.com/garnizeh/jobsync/pkg/models"
)

// Tasks returns the open application's tasks matching filter, in display
// order.
func (e *Engine) Tasks(filter taskview.Filter) []models.Task {
	return taskview.Apply(e.store.Tasks(), filter, e.now())
}

// TaskBuckets groups the open application's tasks by every filter.
func (e *Engine) TaskBuckets() map[taskview.Filter][]models.Task {
	return taskview.Buckets(e.store.Tasks(), e.now())
}

func (e *Engine) CreateTask(ctx context.Context, applicationID int64, in models.TaskInput) (models.Task, error) {
	return e.coord.CreateTask(ctx, applicationID, in)
}

func (e *Engine) UpdateTask(ctx context.Context, id int64, in models.TaskInput) (models.Task, error) {
	return e.coord.UpdateTask(ctx, id, in)
}

// ToggleTask flips a task between OPEN and DONE.
func (e *Engine) ToggleTask(ctx context.Context, id int64) (models.Task, error) {
	return e.coord.ToggleTask(ctx, id)
}

func (e *Engine) SetTaskStatus(ctx context.Context, id int64, status models.TaskStatus) (models.Task, error) {
	return e.coord.SetTaskStatus(ctx, id, status)
}

func (e *Engine) DeleteTask(ctx context.Context, id int64) error {
	return e.coord.DeleteTask(ctx, id)
}
