package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garnizeh/jobsync/pkg/models"
	"github.com/garnizeh/jobsync/pkg/repository"
)

// Mocks is an in-memory stand-in for the remote API. Errors registered with
// Fail are returned by the named method until cleared; Hook runs before every
// call so tests can observe local state while a request is "in flight".
type Mocks struct {
	mu sync.Mutex

	Apps        []models.Application
	Tasks       []models.Task
	StageEvents map[int64][]models.StageEvent
	Audit       []models.AuditEvent

	SummaryResp     models.Summary
	NextActionsResp models.NextActions
	ActivityResp    models.Activity

	Now  func() time.Time
	Hook func(method string)

	errs   map[string]error
	calls  map[string]int
	nextID int64
}

var _ repository.Remote = (*Mocks)(nil)

func NewMocks() *Mocks {
	return &Mocks{
		StageEvents: make(map[int64][]models.StageEvent),
		Now:         func() time.Time { return time.Now().UTC() },
		errs:        make(map[string]error),
		calls:       make(map[string]int),
		nextID:      100,
	}
}

// Fail makes method return err. A nil err clears the failure.
func (m *Mocks) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, method)
		return
	}
	m.errs[method] = err
}

// Calls returns how many times method was invoked.
func (m *Mocks) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// SeedApplication stores app as-is and returns it.
func (m *Mocks) SeedApplication(app models.Application) models.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	if app.ID == 0 {
		app.ID = m.id()
	}
	m.Apps = append(m.Apps, app)
	return app
}

// SeedTask stores t as-is and returns it.
func (m *Mocks) SeedTask(t models.Task) models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.id()
	}
	m.Tasks = append(m.Tasks, t)
	return t
}

// Application returns the server-side copy of an application.
func (m *Mocks) Application(id int64) (models.Application, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.appIndex(id)
	if i < 0 {
		return models.Application{}, false
	}
	return m.Apps[i], true
}

func (m *Mocks) enter(method string) error {
	m.mu.Lock()
	m.calls[method]++
	hook := m.Hook
	m.mu.Unlock()
	if hook != nil {
		hook(method)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[method]
}

func (m *Mocks) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Mocks) appIndex(id int64) int {
	for i := range m.Apps {
		if m.Apps[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Mocks) taskIndex(id int64) int {
	for i := range m.Tasks {
		if m.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound(path string) error {
	return &repository.RemoteError{Status: 404, Code: "request_failed", Message: "Not found", Path: path}
}

func (m *Mocks) ListApplications(ctx context.Context, stage *models.Stage) ([]models.Application, error) {
	if err := m.enter("ListApplications"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Application, 0, len(m.Apps))
	for _, a := range m.Apps {
		if stage == nil || a.Stage == *stage {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Mocks) CreateApplication(ctx context.Context, in models.ApplicationInput) (models.Application, error) {
	if err := m.enter("CreateApplication"); err != nil {
		return models.Application{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	app := in.Apply(models.Application{
		ID:          m.id(),
		Stage:       models.StageSaved,
		LastTouchAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	m.Apps = append(m.Apps, app)
	return app, nil
}

func (m *Mocks) UpdateApplication(ctx context.Context, id int64, in models.ApplicationInput) (models.Application, error) {
	if err := m.enter("UpdateApplication"); err != nil {
		return models.Application{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.appIndex(id)
	if i < 0 {
		return models.Application{}, notFound("/applications")
	}
	now := m.Now()
	app := in.Apply(m.Apps[i])
	app.LastTouchAt = &now
	app.UpdatedAt = now
	m.Apps[i] = app
	return app, nil
}

func (m *Mocks) TransitionStage(ctx context.Context, id int64, stage models.Stage) (models.Application, error) {
	if err := m.enter("TransitionStage"); err != nil {
		return models.Application{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.appIndex(id)
	if i < 0 {
		return models.Application{}, notFound("/applications/stage")
	}
	now := m.Now()
	app := m.Apps[i]
	from := app.Stage
	app.Stage = stage
	app.StageChangedAt = &now
	app.LastTouchAt = &now
	app.UpdatedAt = now
	m.Apps[i] = app
	to := stage
	m.StageEvents[id] = append(m.StageEvents[id], models.StageEvent{
		ID: m.id(), ApplicationID: id, FromStage: &from, ToStage: &to, CreatedAt: now,
	})
	m.Audit = append([]models.AuditEvent{{ID: m.id(), Type: models.AuditStageChanged, EntityType: "application", EntityID: &id, Payload: `{"to":"` + string(stage) + `"}`, CreatedAt: now}}, m.Audit...)
	return app, nil
}

func (m *Mocks) DeleteApplication(ctx context.Context, id int64) error {
	if err := m.enter("DeleteApplication"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.appIndex(id)
	if i < 0 {
		return notFound("/applications")
	}
	m.Apps = append(m.Apps[:i:i], m.Apps[i+1:]...)
	return nil
}

func (m *Mocks) ListStale(ctx context.Context, days int) ([]models.Application, error) {
	if err := m.enter("ListStale"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.Now().AddDate(0, 0, -days)
	var out []models.Application
	for _, a := range m.Apps {
		if a.LastTouchAt != nil && a.LastTouchAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Mocks) ListStageEvents(ctx context.Context, applicationID int64) ([]models.StageEvent, error) {
	if err := m.enter("ListStageEvents"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.StageEvent(nil), m.StageEvents[applicationID]...), nil
}

func (m *Mocks) ListTasks(ctx context.Context, applicationID int64) ([]models.Task, error) {
	if err := m.enter("ListTasks"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.Tasks {
		if t.ApplicationID == applicationID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Mocks) CreateTask(ctx context.Context, applicationID int64, in models.TaskInput) (models.Task, error) {
	if err := m.enter("CreateTask"); err != nil {
		return models.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	t := in.Apply(models.Task{ID: m.id(), ApplicationID: applicationID, Status: models.TaskOpen, CreatedAt: now, UpdatedAt: now})
	m.Tasks = append(m.Tasks, t)
	return t, nil
}

func (m *Mocks) UpdateTask(ctx context.Context, id int64, in models.TaskInput) (models.Task, error) {
	if err := m.enter("UpdateTask"); err != nil {
		return models.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.taskIndex(id)
	if i < 0 {
		return models.Task{}, notFound("/tasks")
	}
	t := in.Apply(m.Tasks[i])
	t.UpdatedAt = m.Now()
	m.Tasks[i] = t
	return t, nil
}

func (m *Mocks) UpdateTaskStatus(ctx context.Context, id int64, status models.TaskStatus) (models.Task, error) {
	if err := m.enter("UpdateTaskStatus"); err != nil {
		return models.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.taskIndex(id)
	if i < 0 {
		return models.Task{}, notFound("/tasks/status")
	}
	t := m.Tasks[i].WithStatus(status, m.Now())
	m.Tasks[i] = t
	return t, nil
}

func (m *Mocks) DeleteTask(ctx context.Context, id int64) error {
	if err := m.enter("DeleteTask"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.taskIndex(id)
	if i < 0 {
		return notFound("/tasks")
	}
	m.Tasks = append(m.Tasks[:i:i], m.Tasks[i+1:]...)
	return nil
}

func (m *Mocks) ListAuditEvents(ctx context.Context, page, size int) ([]models.AuditEvent, error) {
	if err := m.enter("ListAuditEvents"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	start := page * size
	if start >= len(m.Audit) {
		return []models.AuditEvent{}, nil
	}
	end := min(start+size, len(m.Audit))
	return append([]models.AuditEvent(nil), m.Audit[start:end]...), nil
}

func (m *Mocks) Summary(ctx context.Context) (models.Summary, error) {
	if err := m.enter("Summary"); err != nil {
		return models.Summary{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SummaryResp.StageCounts != nil {
		return m.SummaryResp, nil
	}
	counts := make(map[models.Stage]int64)
	for _, a := range m.Apps {
		counts[a.Stage]++
	}
	return models.Summary{StageCounts: counts, OverdueTasks: m.SummaryResp.OverdueTasks}, nil
}

func (m *Mocks) NextActions(ctx context.Context, days int) (models.NextActions, error) {
	if err := m.enter("NextActions"); err != nil {
		return models.NextActions{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NextActionsResp, nil
}

func (m *Mocks) Activity(ctx context.Context, days int) (models.Activity, error) {
	if err := m.enter("Activity"); err != nil {
		return models.Activity{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := m.ActivityResp
	if resp.Days == 0 {
		resp.Days = days
	}
	items := append([]models.ActivityPoint(nil), resp.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].Date < items[j].Date })
	resp.Items = items
	return resp, nil
}
