package repository

import (
	"context"

	"github.com/garnizeh/jobsync/pkg/models"
)

// Remote repository contracts for the job-tracker API. The engine depends on
// these; pkg/gateway is the HTTP implementation and pkg/repository/mock holds
// in-memory doubles for tests.

type ApplicationRepo interface {
	ListApplications(ctx context.Context, stage *models.Stage) ([]models.Application, error)
	CreateApplication(ctx context.Context, in models.ApplicationInput) (models.Application, error)
	UpdateApplication(ctx context.Context, id int64, in models.ApplicationInput) (models.Application, error)
	TransitionStage(ctx context.Context, id int64, stage models.Stage) (models.Application, error)
	DeleteApplication(ctx context.Context, id int64) error
	ListStale(ctx context.Context, days int) ([]models.Application, error)
}

type StageEventRepo interface {
	ListStageEvents(ctx context.Context, applicationID int64) ([]models.StageEvent, error)
}

type TaskRepo interface {
	ListTasks(ctx context.Context, applicationID int64) ([]models.Task, error)
	CreateTask(ctx context.Context, applicationID int64, in models.TaskInput) (models.Task, error)
	UpdateTask(ctx context.Context, id int64, in models.TaskInput) (models.Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status models.TaskStatus) (models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

type AuditRepo interface {
	ListAuditEvents(ctx context.Context, page, size int) ([]models.AuditEvent, error)
}

type DashboardRepo interface {
	Summary(ctx context.Context) (models.Summary, error)
	NextActions(ctx context.Context, days int) (models.NextActions, error)
	Activity(ctx context.Context, days int) (models.Activity, error)
}

type AuthRepo interface {
	Signup(ctx context.Context, email, password string) (models.AuthResponse, error)
	Login(ctx context.Context, email, password string) (models.AuthResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (models.Profile, error)
}

// Remote bundles every repository the engine consumes.
type Remote interface {
	ApplicationRepo
	StageEventRepo
	TaskRepo
	AuditRepo
	DashboardRepo
}
