package mutation

import (
	"context"
	"fmt"

	"github.com/garnizeh/jobsync/internal/lifecycle"
	"github.com/garnizeh/jobsync/pkg/models"
	"github.com/garnizeh/jobsync/pkg/repository"
)

func notLoaded(kind string, id int64) error {
	return fmt.Errorf("%s %d is not loaded: %w", kind, id, repository.ErrNotFound)
}

func byAppID(id int64) func(models.Application) bool {
	return func(a models.Application) bool { return a.ID == id }
}

func replaceApp(app models.Application) func(models.Application) models.Application {
	return func(models.Application) models.Application { return app }
}

// CreateApplication shows a placeholder with a temporary negative id until
// the server returns the created record.
func (c *Coordinator) CreateApplication(ctx context.Context, in models.ApplicationInput) (models.Application, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Application{}, err
	}

	now := c.now()
	placeholder := in.Apply(models.Application{
		ID:          c.nextTempID(),
		Stage:       models.StageSaved,
		LastTouchAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	c.store.InsertApplication(placeholder, 0)

	app, err := c.remote.CreateApplication(ctx, in)
	if err != nil {
		return placeholder, c.settle("create application", err, func() {
			c.store.RemoveApplication(placeholder.ID)
		}, reloadApplications())
	}

	if c.store.ApplyApplications(byAppID(placeholder.ID), replaceApp(app)) == 0 {
		c.store.InsertApplication(app, 0)
	}
	c.enqueue(confirmed(app.ID)...)
	return app, nil
}

func (c *Coordinator) UpdateApplication(ctx context.Context, id int64, in models.ApplicationInput) (models.Application, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Application{}, err
	}
	snap, idx, ok := c.store.Application(id)
	if !ok {
		return models.Application{}, notLoaded("application", id)
	}

	now := c.now()
	optimistic := in.Apply(snap)
	optimistic.LastTouchAt = &now
	optimistic.UpdatedAt = now
	c.store.ApplyApplications(byAppID(id), replaceApp(optimistic))

	app, err := c.remote.UpdateApplication(ctx, id, in)
	if err != nil {
		return optimistic, c.settle("update application", err, func() {
			c.store.RestoreApplication(snap, idx)
		}, reloadApplications())
	}

	c.store.ApplyApplications(byAppID(id), replaceApp(app))
	c.enqueue(confirmed(id)...)
	return app, nil
}

// TransitionStage moves an application to next, subject to the coordinator's
// policy.
func (c *Coordinator) TransitionStage(ctx context.Context, id int64, next models.Stage) (models.Application, error) {
	snap, idx, ok := c.store.Application(id)
	if !ok {
		return models.Application{}, notLoaded("application", id)
	}
	if err := c.policy.Check(snap.Stage, next); err != nil {
		return snap, err
	}

	optimistic := lifecycle.Optimistic(snap, next, c.now())
	c.store.ApplyApplications(byAppID(id), replaceApp(optimistic))

	app, err := c.remote.TransitionStage(ctx, id, next)
	if err != nil {
		return optimistic, c.settle("transition stage", err, func() {
			c.store.RestoreApplication(snap, idx)
		}, reloadApplications(), reloadStageEvents(id))
	}

	c.store.ApplyApplications(byAppID(id), replaceApp(app))
	logger.Debug("stage changed", "application", id, "from", snap.Stage, "to", app.Stage)
	c.enqueue(confirmed(id)...)
	return app, nil
}

// DeleteApplication removes the application locally first and puts it back
// at its old position if the server refuses.
func (c *Coordinator) DeleteApplication(ctx context.Context, id int64) error {
	snap, idx, ok := c.store.RemoveApplication(id)
	if !ok {
		return notLoaded("application", id)
	}

	if err := c.remote.DeleteApplication(ctx, id); err != nil {
		return c.settle("delete application", err, func() {
			c.store.RestoreApplication(snap, idx)
		}, reloadApplications())
	}

	if c.dash != nil {
		c.dash.DecrementStage(snap.Stage)
	}
	c.enqueue(confirmed(id)...)
	return nil
}
