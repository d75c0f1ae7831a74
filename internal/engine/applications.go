package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/jobsync/internal/lifecycle"
	"github.com/garnizeh/jobsync/pkg/models"
	"github.com/garnizeh/jobsync/pkg/repository"
)

// Column is one board column.
type Column struct {
	Stage        models.Stage
	Applications []models.Application
}

// LoadApplications replaces the cached list, optionally filtered by stage.
func (e *Engine) LoadApplications(ctx context.Context, stage *models.Stage) ([]models.Application, error) {
	return e.store.LoadApplications(ctx, stage)
}

func (e *Engine) Applications() []models.Application { return e.store.Applications() }

// Application returns one cached application.
func (e *Engine) Application(id int64) (models.Application, bool) {
	app, _, ok := e.store.Application(id)
	return app, ok
}

// Board groups the cached applications by stage in board order. Every stage
// has a column, possibly empty; order within a column is the list order.
func (e *Engine) Board() []Column {
	apps := e.store.Applications()
	cols := make([]Column, 0, len(models.Stages()))
	for _, st := range models.Stages() {
		col := Column{Stage: st, Applications: []models.Application{}}
		for _, app := range apps {
			if app.Stage == st {
				col.Applications = append(col.Applications, app)
			}
		}
		cols = append(cols, col)
	}
	return cols
}

// NextStages lists the stages application id may move to under the engine's
// policy.
func (e *Engine) NextStages(id int64) ([]models.Stage, error) {
	app, _, ok := e.store.Application(id)
	if !ok {
		return nil, fmt.Errorf("application %d: %w", id, repository.ErrNotFound)
	}
	if e.Policy() == lifecycle.Strict {
		return lifecycle.Allowed(app.Stage), nil
	}
	var out []models.Stage
	for _, st := range models.Stages() {
		if st != app.Stage {
			out = append(out, st)
		}
	}
	return out, nil
}

// OpenApplication selects id as the detail view and loads its tasks and stage
// history in parallel.
func (e *Engine) OpenApplication(ctx context.Context, id int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.store.LoadTasksFor(gctx, id)
		return err
	})
	g.Go(func() error {
		_, err := e.store.LoadStageEvents(gctx, id)
		return err
	})
	return g.Wait()
}

// History returns the stage events of the open application, newest first.
func (e *Engine) History() []models.StageEvent { return e.store.StageEvents() }

func (e *Engine) CreateApplication(ctx context.Context, in models.ApplicationInput) (models.Application, error) {
	return e.coord.CreateApplication(ctx, in)
}

func (e *Engine) UpdateApplication(ctx context.Context, id int64, in models.ApplicationInput) (models.Application, error) {
	return e.coord.UpdateApplication(ctx, id, in)
}

// MoveApplication transitions id to stage.
func (e *Engine) MoveApplication(ctx context.Context, id int64, stage models.Stage) (models.Application, error) {
	return e.coord.TransitionStage(ctx, id, stage)
}

func (e *Engine) DeleteApplication(ctx context.Context, id int64) error {
	return e.coord.DeleteApplication(ctx, id)
}
